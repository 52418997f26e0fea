// Example: rank the sources of an episode listing
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/nartya-app/nartya/pkg/nartya"
	"github.com/nartya-app/nartya/pkg/nartya/types"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("usage: analyze <episodes.json> <language>")
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	var listing types.Listing
	if err := json.Unmarshal(raw, &listing); err != nil {
		log.Fatal(err)
	}

	for _, s := range nartya.AnalyzeSources(listing, os.Args[2]) {
		mark := " "
		if s.Recommended {
			mark = "*"
		}
		fmt.Printf("%s %-10s %-10s %3d episodes slow=%v mixed=%v\n",
			mark, s.Name, s.MainProvider, s.Episodes, s.IsSlow, s.IsMixed)
	}
}
