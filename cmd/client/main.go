package main

import (
	"flag"
	"log"
	"sync"

	"github.com/cs706/saber/pkg/client"
	"github.com/cs706/saber/pkg/saber"
)

func main() {
	servers := flag.String("servers", "127.0.0.1:8888", "comma-separated server list")
	flag.Parse()

	opts := client.NewOptions()
	opts.Servers = *servers
	opts.DefaultWatcher = saber.NewWatcherFunc(func(event saber.WatchedEvent) {
		log.Printf("session state: %s", event.State)
	})

	cli, err := client.New(opts)
	if err != nil {
		log.Fatal("building client:", err)
	}
	if err := cli.Start(); err != nil {
		log.Fatal("starting client:", err)
	}
	defer cli.Stop()

	var wg sync.WaitGroup
	wg.Add(3)

	cli.Create(&saber.CreateRequest{
		Path: "/demo",
		Data: []byte("hello"),
		ACL:  saber.WorldACL(saber.PermAll),
		Kind: saber.Persistent,
	}, nil, func(path string, _ any, resp *saber.CreateResponse) {
		defer wg.Done()
		log.Printf("create %s: %s", path, resp.Code)
	})

	watcher := saber.NewWatcherFunc(func(event saber.WatchedEvent) {
		log.Printf("watch fired: %s %s", event.Type, event.Path)
	})
	cli.GetData(&saber.GetDataRequest{Path: "/demo"}, watcher, nil,
		func(path string, _ any, resp *saber.GetDataResponse) {
			defer wg.Done()
			version := int32(-1)
			if resp.Stat != nil {
				version = resp.Stat.Version
			}
			log.Printf("get %s: %s data=%q version=%d", path, resp.Code, resp.Data, version)
		})

	cli.SetData(&saber.SetDataRequest{Path: "/demo", Data: []byte("world"), Version: -1}, nil,
		func(path string, _ any, resp *saber.SetDataResponse) {
			defer wg.Done()
			log.Printf("set %s: %s", path, resp.Code)
		})

	wg.Wait()
}
