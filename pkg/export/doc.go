// Package export moves monitoring data in and out of moldwatch as files.
//
// # Export
//
// GET /api/monitoring?format=csv returns the query result as a CSV download
// instead of JSON. Raw queries produce one line per reading:
//
//	timestamp,value,component_id,machine_id
//	2024-09-10T08:00:00.000Z,4.2,276,11
//
// Aggregated queries produce one line per bucket:
//
//	timestamp,avg,count,min,max
//	2024-09-10T08:00:00.000Z,6,3,4,8
//
// Null values are written as empty cells.
//
// # Import
//
// The embedded backends (memory, badger) start empty. A seed file fills
// them at startup (moldwatch -seed dump.json):
//
//	{
//	  "mappings": [
//	    {"board": "1", "port": "1", "treeview_id": "276",
//	     "start_date": "2024-01-01", "start_time": "00:00:00"}
//	  ],
//	  "rows": [
//	    {"timestamp": "2024-09-10T08:00:00Z", "value": 4.2, "board": "1", "port": "1"}
//	  ]
//	}
//
// Rows are routed to the monitoring_data_YYYYMM table of their timestamp
// unless they name a table explicitly. Invalid rows are skipped and
// reported in ImportResult.Errors rather than failing the import.
package export
