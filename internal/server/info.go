package server

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/genc-murat/crystalstream/internal/core/models"
	"github.com/genc-murat/crystalstream/internal/util"
)

type infoSection struct {
	name  string
	title string
	// extra sections are only returned when asked for by name or by "all".
	extra bool
}

var infoSections = []infoSection{
	{name: "server", title: "Server"},
	{name: "clients", title: "Clients"},
	{name: "stats", title: "Stats"},
	{name: "keyspace", title: "Keyspace"},
	{name: "commandstats", title: "Commandstats", extra: true},
}

// handleInfo answers INFO [section] from the command metrics and the
// keyspace.
func (s *Server) handleInfo(args []models.Value) models.Value {
	if len(args) > 1 {
		return util.WrongArgs("INFO")
	}
	want := "default"
	if len(args) == 1 {
		want = strings.ToLower(args[0].Bulk)
	}

	stats := s.GetMetrics()
	var b strings.Builder
	for _, section := range infoSections {
		switch want {
		case "all", "everything":
		case "default":
			if section.extra {
				continue
			}
		default:
			if want != section.name {
				continue
			}
		}

		if b.Len() > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString("# " + section.title + "\r\n")
		b.WriteString(formatInfo(s.infoFields(section.name, stats)))
	}
	return models.Bulk(b.String())
}

func (s *Server) infoFields(section string, stats map[string]interface{}) map[string]string {
	fields := make(map[string]string)
	switch section {
	case "server":
		uptime, _ := stats["uptime_in_seconds"].(int)
		fields["process_id"] = fmt.Sprint(os.Getpid())
		fields["uptime_in_seconds"] = fmt.Sprint(uptime)
		fields["uptime_in_days"] = fmt.Sprint(uptime / 86400)
		if addr := s.Addr(); addr != nil {
			fields["listen_addr"] = addr.String()
		}
	case "clients":
		fields["connected_clients"] = fmt.Sprint(stats["connected_clients"])
		fields["maxclients"] = fmt.Sprint(s.config.MaxConnections)
	case "stats":
		fields["total_commands_processed"] = fmt.Sprint(stats["total_commands_processed"])
	case "keyspace":
		if keys := s.cache.DBSize(); keys > 0 {
			fields["db0"] = fmt.Sprintf("keys=%d", keys)
		}
	case "commandstats":
		commands, _ := stats["commandstats"].(map[string]map[string]interface{})
		for cmd, stat := range commands {
			fields["cmdstat_"+strings.ToLower(cmd)] = fmt.Sprintf("calls=%v,usec=%v,usec_per_call=%v,failed_calls=%v",
				stat["calls"], stat["total_time_us"], stat["avg_time_us"], stat["errors"])
		}
	}
	return fields
}

// formatInfo renders fields as sorted key:value lines.
func formatInfo(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(fields[k])
		b.WriteString("\r\n")
	}
	return b.String()
}
