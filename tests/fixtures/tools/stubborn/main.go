// stubborn ignores termination signals so that only a forced kill stops it.
// With -spawn it first starts a copy of itself that does the same and bumps a
// heartbeat file, standing in for a helper process a tool leaves running.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

func main() {
	spawn := flag.String("spawn", "", "heartbeat file of a child to start")
	heartbeat := flag.String("heartbeat", "", "file to bump every 50ms")
	flag.Parse()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	if *spawn != "" {
		self, err := os.Executable()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		child := exec.Command(self, "-heartbeat", *spawn)
		if err := child.Start(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	fmt.Println("stubborn started")

	go func() {
		for s := range sigs {
			fmt.Printf("ignoring signal: %v\n", s)
		}
	}()

	for n := 0; ; n++ {
		if *heartbeat != "" {
			_ = os.WriteFile(*heartbeat, []byte(strconv.Itoa(n)), 0o644)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		time.Sleep(1 * time.Second)
	}
}
