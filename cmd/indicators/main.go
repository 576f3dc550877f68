// Command indicators runs one-shot reports over the indicator sources and
// prints them as JSON.
//
// Usage:
//
//	go run ./cmd/indicators prosperity --year 2020 \
//	  --internet data/share-of-individuals-using-the-internet.csv \
//	  --gdp data/API_NY.GDP.PCAP.CD_DS2_en_csv_v2_24794.csv
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
