// Command replay dumps what the trader persisted during a session, as JSON
// lines, for offline inspection:
//
//	replay -db data/trader.db -what candidates
//	replay -db data/trader.db -what orders
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/seojinpark/volumetrader/internal/observ"
	"github.com/seojinpark/volumetrader/internal/store"
)

func main() {
	var (
		dbPath = flag.String("db", "data/trader.db", "path to the trader database")
		what   = flag.String("what", "candidates", "candidates or orders")
	)
	flag.Parse()

	if err := run(*dbPath, *what); err != nil {
		observ.Error("replay_failed", err, nil)
		os.Exit(1)
	}
}

func run(dbPath, what string) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	switch what {
	case "candidates":
		cands, err := s.Candidates()
		if err != nil {
			return err
		}
		for _, c := range cands {
			printJSON(c)
		}
	case "orders":
		orders, err := s.Orders()
		if err != nil {
			return err
		}
		for _, o := range orders {
			printJSON(o)
		}
	default:
		return fmt.Errorf("unknown -what %q", what)
	}
	return nil
}

func printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Println(string(b))
}
