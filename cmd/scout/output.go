package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// emitJSON writes v as a single line of JSON to stdout, the wire format
// every subcommand uses so results compose with jq and cron logs alike.
func emitJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(b))
	return err
}
