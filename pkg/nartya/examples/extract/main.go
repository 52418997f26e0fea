// Example: resolve an embed page to a direct video URL
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nartya-app/nartya/pkg/nartya"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: extract <embed-url>")
	}
	embedURL := os.Args[1]

	client, err := nartya.NewClient(&nartya.Options{InstallBrowser: true})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	fmt.Printf("Host: %s\n", nartya.DetectProvider(embedURL))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result := client.ExtractVideoURL(ctx, embedURL)
	if !result.Success {
		log.Fatalf("%s: %s", result.ErrorCode, result.UserMessage)
	}

	fmt.Printf("Video URL: %s\n", result.VideoURL)
	for k, v := range nartya.PlaybackHeaders(result.VideoURL) {
		fmt.Printf("  %s: %s\n", k, v)
	}
}
