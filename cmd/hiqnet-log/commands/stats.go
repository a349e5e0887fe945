package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hiqontrol/hiqnet-go/pkg/log"
)

// Stats holds aggregate statistics about a capture.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	EventsByChannel   map[log.Channel]int
	Messages          map[string]int
	ErrorsByKind      map[string]int
	Remotes           map[string]*RemoteStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// RemoteStats holds statistics for a single remote address.
type RemoteStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Serial    string
}

// CollectStats reads every event of path.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		EventsByChannel:   make(map[log.Channel]int),
		Messages:          make(map[string]int),
		ErrorsByKind:      make(map[string]int),
		Remotes:           make(map[string]*RemoteStats),
	}

	err = eachEvent(reader, func(event log.Event) error {
		stats.add(event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++
	s.EventsByChannel[event.Channel]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.RemoteAddr != "" {
		r, ok := s.Remotes[event.RemoteAddr]
		if !ok {
			r = &RemoteStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Remotes[event.RemoteAddr] = r
		}
		r.Events++
		if event.Timestamp.After(r.LastSeen) {
			r.LastSeen = event.Timestamp
		}
		if event.Direction == log.DirectionIn && event.Message != nil && event.Message.SerialNumber != "" {
			r.Serial = event.Message.SerialNumber
		}
	}

	if event.Message != nil {
		s.Messages[event.Message.Name]++
	}
	if event.Error != nil {
		s.Errors++
		kind := event.Error.Kind
		if kind == "" {
			kind = "other"
		}
		s.ErrorsByKind[kind]++
	}
}

// RunStats analyzes the capture and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== HiQnet Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerDevice} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Channel:")
	for _, ch := range []log.Channel{log.ChannelUDP, log.ChannelTCP} {
		if count := stats.EventsByChannel[ch]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", ch.String()+":", count)
		}
	}

	if len(stats.Messages) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Messages:")
		for _, name := range sortedKeys(stats.Messages) {
			fmt.Fprintf(w, "  %-16s %d\n", name+":", stats.Messages[name])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Remotes: %d\n", len(stats.Remotes))
	if len(stats.Remotes) > 0 {
		addrs := make([]string, 0, len(stats.Remotes))
		for addr := range stats.Remotes {
			addrs = append(addrs, addr)
		}
		sort.Slice(addrs, func(i, j int) bool {
			return stats.Remotes[addrs[i]].FirstSeen.Before(stats.Remotes[addrs[j]].FirstSeen)
		})

		fmt.Fprintln(w)
		for _, addr := range addrs {
			r := stats.Remotes[addr]
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", addr, r.Events,
				r.LastSeen.Sub(r.FirstSeen).Round(time.Millisecond))
			if r.Serial != "" {
				fmt.Fprintf(w, "           Serial: %s\n", r.Serial)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
		for _, kind := range sortedKeys(stats.ErrorsByKind) {
			fmt.Fprintf(w, "  %-16s %d\n", kind+":", stats.ErrorsByKind[kind])
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
