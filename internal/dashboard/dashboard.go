// Package dashboard provides a web-based monitoring view of the prediction
// service. It serves live service state, model details, and recent prediction
// activity over both a REST endpoint and WebSocket streaming.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"cardioml/internal/serve"
	"cardioml/internal/tracking"
)

const (
	// statsInterval is how often stats are collected and broadcast.
	statsInterval = 2 * time.Second
	// statsWindow is how many audit records feed the aggregate counts.
	statsWindow = 200
	// recentRows is how many predictions the recent activity table shows.
	recentRows = 10
)

// PredictionReader supplies recent audit records for display.
// *tracking.Store satisfies it.
type PredictionReader interface {
	RecentPredictions(n int) ([]tracking.PredictionRecord, error)
}

// Stats is the snapshot pushed to dashboard clients.
type Stats struct {
	Timestamp time.Time `json:"timestamp"` // Time of stats collection

	// Service status
	State              string    `json:"state"`              // Service lifecycle state
	ModelName          string    `json:"modelName"`          // Loaded model name
	ModelType          string    `json:"modelType"`          // Loaded model type
	ModelTrainedAt     time.Time `json:"modelTrainedAt"`     // When the model was trained
	ModelLoaded        bool      `json:"modelLoaded"`        // Whether a model artifact is loaded
	PreprocessorLoaded bool      `json:"preprocessorLoaded"` // Whether a preprocessor artifact is loaded

	// Prediction activity over the retained audit window
	TotalPredictions int     `json:"totalPredictions"` // Records in the window
	PositiveRate     float64 `json:"positiveRate"`     // Fraction predicted positive
	MeanProbability  float64 `json:"meanProbability"`  // Mean positive-class probability

	// Confidence band counts
	HighConfidence   int `json:"highConfidence"`
	MediumConfidence int `json:"mediumConfidence"`
	LowConfidence    int `json:"lowConfidence"`

	// Most recent predictions, newest first
	Recent []PredictionView `json:"recent"`
}

// PredictionView is one row of the recent activity table.
type PredictionView struct {
	Time        string  `json:"time"`
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
	Confidence  string  `json:"confidence"`
}

// Dashboard serves the monitoring UI with WebSocket streaming for live
// updates of service state and prediction activity.
type Dashboard struct {
	service          *serve.Service           // Prediction service for state and model info
	store            PredictionReader         // Audit record source, may be nil
	server           *http.Server             // HTTP server for the dashboard
	upgrader         websocket.Upgrader       // WebSocket upgrader for live updates
	clients          map[*websocket.Conn]bool // Connected WebSocket clients
	clientsMu        sync.RWMutex             // Mutex for client map access
	broadcastChannel chan Stats               // Channel for broadcasting stats
	stopChannel      chan struct{}            // Channel for shutdown signaling
	isRunning        bool                     // Whether the dashboard is running
	mu               sync.RWMutex             // Mutex for dashboard state
}

// New creates a dashboard for the given service on the specified port.
// It sets up HTTP routes and WebSocket handling. Returns a ready-to-start
// dashboard instance.
func New(service *serve.Service, store PredictionReader, port int) *Dashboard {
	d := &Dashboard{
		service:          service,
		store:            store,
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan Stats, 100),
		stopChannel:      make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", d.handleDashboard).Methods("GET")
	r.HandleFunc("/api/stats", d.handleStatsAPI).Methods("GET")
	r.HandleFunc("/ws", d.handleWebSocket).Methods("GET")

	d.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return d
}

// Start starts the dashboard server and its broadcast loops.
func (d *Dashboard) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("dashboard is already running")
	}

	go d.statsCollector()
	go d.clientBroadcaster()

	go func() {
		log.Info().
			Str("address", d.server.Addr).
			Msg("Starting monitoring dashboard")

		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Dashboard server failed")
		}
	}()

	d.isRunning = true
	return nil
}

// Stop stops the dashboard server and disconnects all clients.
func (d *Dashboard) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return nil
	}

	close(d.stopChannel)

	d.clientsMu.Lock()
	for client := range d.clients {
		client.Close()
	}
	d.clients = make(map[*websocket.Conn]bool)
	d.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown dashboard server")
		return err
	}

	d.isRunning = false
	log.Info().Msg("Dashboard stopped")
	return nil
}

// Handler returns the route handler, useful for tests.
func (d *Dashboard) Handler() http.Handler {
	return d.server.Handler
}

// statsCollector collects stats on a fixed interval and queues them for
// broadcast.
func (d *Dashboard) statsCollector() {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := d.collectStats()
			select {
			case d.broadcastChannel <- stats:
			default:
				// Channel full, skip this update
			}
		case <-d.stopChannel:
			return
		}
	}
}

// clientBroadcaster forwards queued stats to all connected clients.
func (d *Dashboard) clientBroadcaster() {
	for {
		select {
		case stats := <-d.broadcastChannel:
			d.broadcastToClients(stats)
		case <-d.stopChannel:
			return
		}
	}
}

// collectStats gathers a snapshot from the service and the audit store.
func (d *Dashboard) collectStats() Stats {
	stats := Stats{
		Timestamp:          time.Now(),
		State:              d.service.State().String(),
		ModelLoaded:        d.service.ModelLoaded(),
		PreprocessorLoaded: d.service.PreprocessorLoaded(),
	}
	if stats.ModelLoaded {
		info := d.service.Info()
		stats.ModelName = d.service.ModelName()
		stats.ModelType = info.Type
		stats.ModelTrainedAt = info.TrainedAt
	}

	if d.store == nil {
		return stats
	}

	records, err := d.store.RecentPredictions(statsWindow)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read recent predictions")
		return stats
	}

	stats.TotalPredictions = len(records)
	positives := 0
	probSum := 0.0
	for _, rec := range records {
		if rec.Prediction == 1 {
			positives++
		}
		probSum += rec.Probability
		switch rec.Confidence {
		case serve.ConfidenceHigh:
			stats.HighConfidence++
		case serve.ConfidenceMedium:
			stats.MediumConfidence++
		default:
			stats.LowConfidence++
		}
	}
	if len(records) > 0 {
		stats.PositiveRate = float64(positives) / float64(len(records))
		stats.MeanProbability = probSum / float64(len(records))
	}

	limit := len(records)
	if limit > recentRows {
		limit = recentRows
	}
	for _, rec := range records[:limit] {
		stats.Recent = append(stats.Recent, PredictionView{
			Time:        rec.CreatedAt.Format("15:04:05"),
			Prediction:  rec.Prediction,
			Probability: rec.Probability,
			Confidence:  rec.Confidence,
		})
	}

	return stats
}

// broadcastToClients sends a snapshot to all connected WebSocket clients.
func (d *Dashboard) broadcastToClients(stats Stats) {
	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()

	data, err := json.Marshal(stats)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal stats for broadcast")
		return
	}

	for client := range d.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Msg("Failed to send message to WebSocket client")
			client.Close()
			delete(d.clients, client)
		}
	}
}

// handleDashboard serves the main dashboard HTML page.
func (d *Dashboard) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <title>Heart Disease Prediction - Monitoring</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 1200px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #c31432 0%, #240b36 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; }
        .header h1 { margin: 0; font-size: 2em; text-align: center; }
        .status-bar { display: flex; justify-content: space-between; align-items: center; background: white; padding: 15px; border-radius: 8px; margin-bottom: 20px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .status-indicator { display: flex; align-items: center; font-weight: bold; }
        .status-dot { width: 12px; height: 12px; border-radius: 50%; margin-right: 8px; }
        .status-ready { background-color: #28a745; }
        .status-degraded { background-color: #ffc107; }
        .status-unavailable { background-color: #dc3545; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(280px, 1fr)); gap: 20px; }
        .card { background: white; border-radius: 10px; padding: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); }
        .card h3 { margin-top: 0; color: #333; border-bottom: 2px solid #eee; padding-bottom: 10px; }
        .metric { display: flex; justify-content: space-between; align-items: center; padding: 8px 0; border-bottom: 1px solid #eee; }
        .metric:last-child { border-bottom: none; }
        .metric-label { font-weight: 500; color: #666; }
        .metric-value { font-weight: bold; color: #333; }
        .large-metric { font-size: 1.5em; text-align: center; margin: 10px 0; }
        .band { display: flex; justify-content: space-between; align-items: center; padding: 5px 0; }
        .band-count { padding: 2px 10px; border-radius: 4px; font-size: 0.9em; font-weight: bold; color: white; }
        .band-high { background-color: #28a745; }
        .band-medium { background-color: #ffc107; }
        .band-low { background-color: #dc3545; }
        .predictions-table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        .predictions-table th, .predictions-table td { text-align: left; padding: 8px; border-bottom: 1px solid #eee; }
        .predictions-table th { background-color: #f8f9fa; font-weight: 600; }
        .outcome-positive { color: #dc3545; font-weight: bold; }
        .outcome-negative { color: #28a745; font-weight: bold; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Heart Disease Prediction Service</h1>
        </div>

        <div class="status-bar">
            <div class="status-indicator">
                <div class="status-dot" id="service-status"></div>
                <span id="service-status-text">Connecting...</span>
            </div>
            <div class="status-indicator">
                <span id="last-update">Last Updated: --</span>
            </div>
        </div>

        <div class="grid">
            <div class="card">
                <h3>Model</h3>
                <div class="metric">
                    <span class="metric-label">Name</span>
                    <span class="metric-value" id="model-name">--</span>
                </div>
                <div class="metric">
                    <span class="metric-label">Type</span>
                    <span class="metric-value" id="model-type">--</span>
                </div>
                <div class="metric">
                    <span class="metric-label">Trained</span>
                    <span class="metric-value" id="model-trained-at">--</span>
                </div>
                <div class="metric">
                    <span class="metric-label">Preprocessor</span>
                    <span class="metric-value" id="preprocessor-loaded">--</span>
                </div>
            </div>

            <div class="card">
                <h3>Prediction Activity</h3>
                <div class="large-metric">
                    <span id="total-predictions">0</span> predictions
                </div>
                <div class="metric">
                    <span class="metric-label">Positive Rate</span>
                    <span class="metric-value" id="positive-rate">0.0%</span>
                </div>
                <div class="metric">
                    <span class="metric-label">Mean Probability</span>
                    <span class="metric-value" id="mean-probability">0.000</span>
                </div>
            </div>

            <div class="card">
                <h3>Confidence Bands</h3>
                <div class="band">
                    <span>High (p &ge; 0.8)</span>
                    <span class="band-count band-high" id="band-high">0</span>
                </div>
                <div class="band">
                    <span>Medium (0.6 &le; p &lt; 0.8)</span>
                    <span class="band-count band-medium" id="band-medium">0</span>
                </div>
                <div class="band">
                    <span>Low (p &lt; 0.6)</span>
                    <span class="band-count band-low" id="band-low">0</span>
                </div>
            </div>
        </div>

        <div class="card" style="margin-top: 20px;">
            <h3>Recent Predictions</h3>
            <table class="predictions-table">
                <thead>
                    <tr>
                        <th>Time</th>
                        <th>Outcome</th>
                        <th>Probability</th>
                        <th>Confidence</th>
                    </tr>
                </thead>
                <tbody id="predictions-table-body">
                    <tr>
                        <td colspan="4" style="text-align: center; color: #666;">No predictions yet</td>
                    </tr>
                </tbody>
            </table>
        </div>
    </div>

    <script>
        const ws = new WebSocket('ws://' + location.host + '/ws');

        ws.onmessage = function(event) {
            const data = JSON.parse(event.data);
            updateDashboard(data);
        };

        ws.onclose = function() {
            setTimeout(() => location.reload(), 5000);
        };

        function updateDashboard(data) {
            document.getElementById('last-update').textContent = 'Last Updated: ' + new Date(data.timestamp).toLocaleTimeString();

            const statusDot = document.getElementById('service-status');
            const statusText = document.getElementById('service-status-text');
            if (data.state === 'ready') {
                statusDot.className = 'status-dot status-ready';
                statusText.textContent = 'Ready';
            } else if (data.state === 'degraded') {
                statusDot.className = 'status-dot status-degraded';
                statusText.textContent = 'Degraded (no preprocessing)';
            } else {
                statusDot.className = 'status-dot status-unavailable';
                statusText.textContent = 'Unavailable';
            }

            document.getElementById('model-name').textContent = data.modelName || 'none';
            document.getElementById('model-type').textContent = data.modelType || '--';
            document.getElementById('model-trained-at').textContent = data.modelLoaded ? new Date(data.modelTrainedAt).toLocaleString() : '--';
            document.getElementById('preprocessor-loaded').textContent = data.preprocessorLoaded ? 'loaded' : 'missing';

            document.getElementById('total-predictions').textContent = data.totalPredictions;
            document.getElementById('positive-rate').textContent = (data.positiveRate * 100).toFixed(1) + '%';
            document.getElementById('mean-probability').textContent = data.meanProbability.toFixed(3);

            document.getElementById('band-high').textContent = data.highConfidence;
            document.getElementById('band-medium').textContent = data.mediumConfidence;
            document.getElementById('band-low').textContent = data.lowConfidence;

            updatePredictionsTable(data.recent);
        }

        function updatePredictionsTable(recent) {
            const tbody = document.getElementById('predictions-table-body');
            tbody.innerHTML = '';

            if (!recent || recent.length === 0) {
                tbody.innerHTML = '<tr><td colspan="4" style="text-align: center; color: #666;">No predictions yet</td></tr>';
                return;
            }

            for (const rec of recent) {
                const row = document.createElement('tr');
                const outcome = rec.prediction === 1 ? 'Disease' : 'No Disease';
                const outcomeClass = rec.prediction === 1 ? 'outcome-positive' : 'outcome-negative';
                row.innerHTML = '<td>' + rec.time + '</td>' +
                    '<td class="' + outcomeClass + '">' + outcome + '</td>' +
                    '<td>' + rec.probability.toFixed(3) + '</td>' +
                    '<td>' + rec.confidence + '</td>';
                tbody.appendChild(row);
            }
        }
    </script>
</body>
</html>
	`

	t, err := template.New("dashboard").Parse(tmpl)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	t.Execute(w, nil)
}

// handleStatsAPI serves the current stats snapshot as JSON.
func (d *Dashboard) handleStatsAPI(w http.ResponseWriter, r *http.Request) {
	stats := d.collectStats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleWebSocket upgrades the connection and streams stats until the client
// disconnects.
func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	d.clientsMu.Lock()
	d.clients[conn] = true
	d.clientsMu.Unlock()

	// Send an initial snapshot so the page renders before the first tick.
	stats := d.collectStats()
	if data, err := json.Marshal(stats); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	d.clientsMu.Lock()
	delete(d.clients, conn)
	d.clientsMu.Unlock()
}
