package main

import (
	"flag"
	"log"
	"os"

	"github.com/robotalks/rdd.go/pkg/publish"
	"github.com/robotalks/rdd.go/pkg/rdd/msgs"
	"github.com/robotalks/rdd.go/pkg/transport/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/"
	filter  = publish.AllTopics
)

func init() {
	if val := os.Getenv("RDD_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&filter, "filter", filter, "Telemetry topic filter.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	publish.Watch(q, filter, func(m *msgs.ResultEvent) {
		log.Printf("%s %s", m.Time().Format("15:04:05.000"), m.Summary())
	})
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
