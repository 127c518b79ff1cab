package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ayusman/arucoloc/internal/broadcast"
)

func main() {
	port := flag.Int("port", 50000, "UDP port to listen on")
	raw := flag.Bool("raw", false, "print the datagram JSON instead of a table")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := broadcast.OpenListener(ctx, *port)
	if err != nil {
		log.Fatalf("Failed to listen on port %d: %v", *port, err)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Printf("Listening for positions on udp/%d", *port)

	err = broadcast.Listen(ctx, conn, func(r broadcast.Received) {
		if *raw {
			data, err := broadcast.Encode(r.Batch)
			if err != nil {
				log.Printf("warning: %v", err)
				return
			}
			fmt.Printf("%s\n%s\n", r.From, data)
			return
		}
		printBatch(r)
	}, func(err error) {
		log.Printf("warning: %v", err)
	})
	if err != nil {
		log.Fatalf("Listener failed: %v", err)
	}
}

func printBatch(r broadcast.Received) {
	fmt.Printf("from %s, %d platforms\n", r.From, len(r.Batch))
	for _, id := range r.Batch.IDs() {
		e, _ := r.Batch.Get(id)
		fmt.Printf("  %-4s t=%.3f elapsed=%.2fs pos=(%.3f, %.3f, %.3f) rot=(%.1f, %.1f, %.1f)\n",
			strconv.Itoa(id), e[0], e[1], e[2], e[3], e[4], e[5], e[6], e[7])
	}
}
