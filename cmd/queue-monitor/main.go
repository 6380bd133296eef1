// The queue-monitor polls nsqd stats and exports backlog gauges for the
// task queues, plus a periodic heartbeat task through the dispatcher's
// public endpoint.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entregahub/entregahub/internal/catalog"
)

// nsqStats is the JSON shape of nsqd's /stats endpoint.
type nsqStats struct {
	Topics []struct {
		TopicName string `json:"topic_name"`
		Depth     int64  `json:"depth"`
		Channels  []struct {
			ChannelName   string `json:"channel_name"`
			Depth         int64  `json:"depth"`
			InFlightCount int64  `json:"in_flight_count"`
		} `json:"channels"`
	} `json:"topics"`
}

var (
	queueBacklog = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "entregahub_queue_backlog",
		Help: "Messages waiting in each task queue's worker channel",
	}, []string{"queue"})

	channelDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "entregahub_nsq_channel_depth",
		Help: "Depth of NSQ channels by topic and channel",
	}, []string{"topic", "channel"})

	channelInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "entregahub_nsq_channel_inflight",
		Help: "In-flight messages for NSQ channels by topic and channel",
	}, []string{"topic", "channel"})
)

func init() {
	prometheus.MustRegister(queueBacklog)
	prometheus.MustRegister(channelDepth)
	prometheus.MustRegister(channelInflight)
}

func main() {
	nsqdHost := getEnv("NSQD_HTTP_ADDR", "nsqd:4151")
	port := getEnv("PORT", "8084")
	interval := getEnvInt("POLL_INTERVAL_SECONDS", 15)
	logisticaURL := getEnv("LOGISTICA_URL", "")
	apiKey := getEnv("INTERNAL_API_KEY", "")
	heartbeat := getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 0)

	log.Printf("queue-monitor escuchando en :%s, nsqd en %s cada %ds", port, nsqdHost, interval)

	go collectMetrics(nsqdHost, time.Duration(interval)*time.Second)
	if heartbeat > 0 && logisticaURL != "" {
		go sendHeartbeats(logisticaURL, apiKey, time.Duration(heartbeat)*time.Second)
	}

	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"ok":true}`)
	})

	log.Fatal(http.ListenAndServe(":"+port, nil))
}

func collectMetrics(nsqdHost string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := updateMetrics(nsqdHost); err != nil {
			log.Printf("error actualizando métricas: %v", err)
		}
	}
}

func updateMetrics(nsqdHost string) error {
	resp, err := http.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHost))
	if err != nil {
		return fmt.Errorf("leer stats de nsqd: %w", err)
	}
	defer resp.Body.Close()

	var stats nsqStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decodificar stats de nsqd: %w", err)
	}

	watched := map[string]bool{}
	for _, q := range catalog.Queues() {
		watched[q] = true
	}

	for _, topic := range stats.Topics {
		if !watched[topic.TopicName] {
			continue
		}
		for _, channel := range topic.Channels {
			if channel.ChannelName == "workers" {
				queueBacklog.WithLabelValues(topic.TopicName).Set(float64(channel.Depth))
			}
			channelDepth.WithLabelValues(topic.TopicName, channel.ChannelName).Set(float64(channel.Depth))
			channelInflight.WithLabelValues(topic.TopicName, channel.ChannelName).Set(float64(channel.InFlightCount))
		}
	}
	return nil
}

// sendHeartbeats periodically dispatches the monitor health-check task so
// the worker path itself is exercised end to end.
func sendHeartbeats(logisticaURL, apiKey string, interval time.Duration) {
	client := &http.Client{Timeout: 10 * time.Second}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		body := strings.NewReader(`{"tipo":"validar_inventario","producto_id":1,"cantidad":1}`)
		req, err := http.NewRequest(http.MethodPost, logisticaURL+"/tareas", body)
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("i-api-key", apiKey)
		resp, err := client.Do(req)
		if err != nil {
			log.Printf("heartbeat fallido: %v", err)
			continue
		}
		resp.Body.Close()
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
