// Command mount_logger records the mountd status stream in InfluxDB.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/spf13/pflag"
)

var (
	mountdURL   = pflag.String("mountd", "ws://localhost:8502/api/ws", "mountd status websocket")
	influxURL   = pflag.String("influx", "http://localhost:9999", "InfluxDB server")
	org         = pflag.String("org", "observatory", "InfluxDB organization")
	bucket      = pflag.String("bucket", "mount.raw", "InfluxDB bucket")
	measurement = pflag.String("measurement", "mount.status", "measurement name for status points")
)

func main() {
	pflag.Parse()
	// Create client
	client := influxdb2.NewClient(*influxURL, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Get non-blocking write client
	writeApi := client.WriteApi(*org, *bucket)
	defer writeApi.Close()
	// Get errors channel
	errorsCh := writeApi.Errors()
	// Create go proc for reading and logging errors
	go func() {
		for err := range errorsCh {
			log.Printf("write error: %v", err)
		}
	}()
	for {
		if err := logData(writeApi, *mountdURL); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

// flattenStatus turns nested JSON into dotted field names. Only the string
// fields named in keep are recorded.
func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	case string:
		if keep[prefix[1:]] {
			fields[prefix[1:]] = status
		}
	case nil:
	default:
		fields[prefix[1:]] = status
	}
}

var keep = map[string]bool{
	"status":           true,
	"warning.text":     true,
	"information.text": true,
}

// statusTags are copied from the fields into point tags.
var statusTags = []string{"status"}

func logData(writeApi api.WriteApi, url string) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		fields := make(map[string]interface{})
		flattenStatus(fields, status, "")
		tags := make(map[string]string)
		for _, t := range statusTags {
			if v, ok := fields[t].(string); ok {
				tags[t] = v
			}
		}

		p := influxdb2.NewPoint(*measurement,
			tags,
			fields,
			time.Now(),
		)
		// write asynchronously
		writeApi.WritePoint(p)
	}
}
