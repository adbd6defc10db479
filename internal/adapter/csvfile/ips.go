package csvfile

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strings"
)

// ReadIPs parses the IP-address CSV and returns the distinct, syntactically
// valid addresses in first-seen order. Duplicates are expected in the
// source and dropped here; invalid entries are skipped with a warning
// rather than failing the load.
func ReadIPs(path string, logger *slog.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ip file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ip file: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("ip file %s has no header row", path)
	}

	cols := columnIndex(records[0])
	idx, ok := cols["ip_address"]
	if !ok {
		return nil, fmt.Errorf("ip file missing required column %q", "ip_address")
	}

	seen := make(map[string]struct{}, len(records)-1)
	ips := make([]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		ip := strings.TrimSpace(rec[idx])
		if ip == "" {
			continue
		}
		if _, err := netip.ParseAddr(ip); err != nil {
			logger.Warn("skipping invalid ip address", "file", path, "ip", ip)
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		ips = append(ips, ip)
	}
	return ips, nil
}
