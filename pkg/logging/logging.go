// Package logging hands out the shared logger used across the module.
package logging

import (
	"github.com/sirupsen/logrus"
)

var root = logrus.New()

// NewLogger returns an entry scoped to the given component name.
func NewLogger(component string) *logrus.Entry {
	return root.WithField("component", component)
}

// SetLevel adjusts the level of every logger handed out by this package.
func SetLevel(level string) error {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	root.SetLevel(l)
	return nil
}
