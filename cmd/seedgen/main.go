// Command seedgen writes a development seed file for moldwatch -seed.
//
// It simulates injection-moulding shot times for a few boards and ports,
// one reading per interval, and maps components to the channels:
//
//	seedgen -boards 2 -ports 4 -days 45 -out seed.json
//	moldwatch -seed seed.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/nicktill/moldwatch/pkg/export"
)

type options struct {
	boards   int
	ports    int
	days     int
	interval time.Duration
	end      time.Time
	seed     int64
}

func main() {
	var opts options
	var out string
	flag.IntVar(&opts.boards, "boards", 2, "number of boards")
	flag.IntVar(&opts.ports, "ports", 4, "ports per board")
	flag.IntVar(&opts.days, "days", 30, "days of history ending now")
	flag.DurationVar(&opts.interval, "interval", 5*time.Minute, "time between readings per channel")
	flag.Int64Var(&opts.seed, "seed", 1, "random seed")
	flag.StringVar(&out, "out", "", "output file (default stdout)")
	flag.Parse()
	opts.end = time.Now().UTC().Truncate(time.Minute)

	w := io.Writer(os.Stdout)
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seedgen: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	if err := write(w, generate(opts)); err != nil {
		fmt.Fprintf(os.Stderr, "seedgen: %v\n", err)
		os.Exit(1)
	}
}

// generate builds the seed data. Component ids start at 200 and follow the
// channels board-major; halfway through the range the first component
// moves to the last channel, so mapping windows get exercised.
func generate(opts options) export.ImportData {
	rnd := rand.New(rand.NewSource(opts.seed))
	start := opts.end.Add(-time.Duration(opts.days) * 24 * time.Hour)
	half := start.Add(opts.end.Sub(start) / 2)

	var data export.ImportData
	component := 200
	for b := 1; b <= opts.boards; b++ {
		for p := 1; p <= opts.ports; p++ {
			data.Mappings = append(data.Mappings, export.MappingEntry{
				Board:      strconv.Itoa(b),
				Port:       strconv.Itoa(p),
				StartDate:  start.Format("2006-01-02"),
				StartTime:  "00:00:00",
				TreeviewID: strconv.Itoa(component),
			})
			component++
		}
	}
	if len(data.Mappings) > 1 {
		first := &data.Mappings[0]
		first.EndDate = half.Format("2006-01-02")
		first.EndTime = half.Format("15:04:05")

		last := data.Mappings[len(data.Mappings)-1]
		data.Mappings = append(data.Mappings, export.MappingEntry{
			Board:       last.Board,
			Port:        last.Port,
			StartDate:   half.Format("2006-01-02"),
			StartTime:   half.Format("15:04:05"),
			Treeview2ID: first.TreeviewID,
		})
	}

	if opts.interval <= 0 {
		return data
	}
	for ts := start; !ts.After(opts.end); ts = ts.Add(opts.interval) {
		for b := 1; b <= opts.boards; b++ {
			for p := 1; p <= opts.ports; p++ {
				entry := export.RowEntry{
					Timestamp: ts.Format(time.RFC3339),
					Board:     strconv.Itoa(b),
					Port:      strconv.Itoa(p),
				}
				// ~2% of readings are missing, as with a stalled sensor
				if rnd.Float64() >= 0.02 {
					v := shotTime(ts, b, p, rnd)
					entry.Value = &v
				}
				data.Rows = append(data.Rows, entry)
			}
		}
	}
	return data
}

// shotTime is a daily cycle around a per-channel baseline plus noise,
// rounded to milliseconds.
func shotTime(ts time.Time, board, port int, rnd *rand.Rand) float64 {
	base := 4 + float64((board*7+port*3)%5)*0.5
	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	daily := 0.4 * math.Sin(2*math.Pi*hour/24)
	return math.Round((base+daily+rnd.NormFloat64()*0.1)*1000) / 1000
}

func write(w io.Writer, data export.ImportData) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
