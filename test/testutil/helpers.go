package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rollbackwallet/rollbackctl/internal/config"
	"github.com/rollbackwallet/rollbackctl/internal/crypto"
	"github.com/rollbackwallet/rollbackctl/internal/models"
)

// LogEntry represents a captured log entry for testing
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// TestServer is an in-memory rollback backend for integration tests.
type TestServer struct {
	*httptest.Server

	// Decrypter, when set, decrypts registered keys with KeyMaterial
	// the way the backend does.
	Decrypter   *crypto.Encryptor
	KeyMaterial string

	mu            sync.RWMutex
	users         map[string]*models.User
	histories     map[string]models.RollbackHistory
	monitors      map[string]*models.MonitorStatus
	activity      map[string][]models.ActivityEvent
	recoveredKeys map[string]string
	requestIDs    []string
}

// NewTestServer creates a new test HTTP server.
func NewTestServer() *TestServer {
	ts := &TestServer{
		users:         make(map[string]*models.User),
		histories:     make(map[string]models.RollbackHistory),
		monitors:      make(map[string]*models.MonitorStatus),
		activity:      make(map[string][]models.ActivityEvent),
		recoveredKeys: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users", ts.handleRegister)
	mux.HandleFunc("GET /api/users/{wallet}", ts.handleGetUser)
	mux.HandleFunc("GET /api/wallets/{wallet}", ts.handleListBackups)
	mux.HandleFunc("PUT /api/wallets/{wallet}/backups", ts.handleUpdateBackups)
	mux.HandleFunc("GET /api/rollback/history/{wallet}", ts.handleHistory)
	mux.HandleFunc("POST /api/rollback/estimate", ts.handleEstimate)
	mux.HandleFunc("POST /api/rollback/validate", ts.handleValidate)
	mux.HandleFunc("POST /api/rollback/retry", ts.handleRetry)
	mux.HandleFunc("POST /api/monitor", ts.handleTrigger)
	mux.HandleFunc("GET /api/monitor/{wallet}", ts.handleMonitorStatus)
	mux.HandleFunc("GET /ws/activity", ts.handleActivity)

	ts.Server = httptest.NewServer(ts.recordRequestID(mux))
	return ts
}

// SetHistory sets the rollback history served for a wallet.
func (ts *TestServer) SetHistory(h models.RollbackHistory) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.histories[models.NormalizeAddress(h.WalletAddress)] = h
}

// AddActivity queues an event for the activity stream of its wallet.
func (ts *TestServer) AddActivity(ev models.ActivityEvent) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	wallet := models.NormalizeAddress(ev.WalletAddress)
	ts.activity[wallet] = append(ts.activity[wallet], ev)
}

// RecoveredKey returns the private key the server decrypted for wallet.
func (ts *TestServer) RecoveredKey(wallet string) string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.recoveredKeys[models.NormalizeAddress(wallet)]
}

// User returns the stored user for wallet.
func (ts *TestServer) User(wallet string) (*models.User, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	u, ok := ts.users[models.NormalizeAddress(wallet)]
	return u, ok
}

// RequestIDs returns the X-Request-ID of every request seen.
func (ts *TestServer) RequestIDs() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return append([]string(nil), ts.requestIDs...)
}

func (ts *TestServer) recordRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requestIDs = append(ts.requestIDs, r.Header.Get("X-Request-ID"))
		ts.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (ts *TestServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := models.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	wallet := models.NormalizeAddress(req.WalletAddress)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, exists := ts.users[wallet]; exists {
		writeError(w, http.StatusConflict, "conflict", "wallet already registered")
		return
	}

	if ts.Decrypter != nil {
		key, err := ts.Decrypter.Decrypt(req.EncryptedPrivateKey, ts.KeyMaterial)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "cannot decrypt private key")
			return
		}
		ts.recoveredKeys[wallet] = key
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:                  "user-" + wallet[2:10],
		WalletAddress:       wallet,
		EncryptedPrivateKey: req.EncryptedPrivateKey,
		BackupWallets:       req.BackupWallets,
		InactivityDays:      req.InactivityDays,
		Email:               req.Email,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	ts.users[wallet] = user

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, user)
}

func (ts *TestServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := ts.User(r.PathValue("wallet"))
	if !ok {
		writeError(w, http.StatusNotFound, models.ErrCodeNotFound, "User not found")
		return
	}
	writeJSON(w, user)
}

func (ts *TestServer) handleListBackups(w http.ResponseWriter, r *http.Request) {
	user, ok := ts.User(r.PathValue("wallet"))
	if !ok {
		writeError(w, http.StatusNotFound, models.ErrCodeNotFound, "User not found")
		return
	}
	writeJSON(w, map[string]interface{}{
		"walletAddress": user.WalletAddress,
		"backupWallets": user.BackupWallets,
	})
}

func (ts *TestServer) handleUpdateBackups(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateBackupsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := models.Validate(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
		return
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	user, ok := ts.users[models.NormalizeAddress(r.PathValue("wallet"))]
	if !ok {
		writeError(w, http.StatusNotFound, models.ErrCodeNotFound, "User not found")
		return
	}
	user.BackupWallets = req.BackupWallets
	user.UpdatedAt = time.Now().UTC()
	writeJSON(w, user)
}

func (ts *TestServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	wallet := models.NormalizeAddress(r.PathValue("wallet"))

	ts.mu.RLock()
	h, ok := ts.histories[wallet]
	ts.mu.RUnlock()

	if !ok {
		h = models.RollbackHistory{WalletAddress: wallet, Rollbacks: []models.RollbackRecord{}}
	}
	writeJSON(w, h)
}

func (ts *TestServer) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req models.WalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, models.RollbackEstimate{
		WalletAddress: req.WalletAddress,
		GasLimit:      21000,
		GasPrice:      "20000000000",
		TotalCost:     "420000000000000",
		Balance:       "1000000000000000000",
		TokenCount:    1,
		Feasible:      true,
	})
}

func (ts *TestServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req models.WalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	_, registered := ts.User(req.WalletAddress)
	result := models.ValidationResult{WalletAddress: req.WalletAddress, Valid: registered}
	if !registered {
		result.Issues = []string{"wallet is not registered"}
	}
	writeJSON(w, result)
}

func (ts *TestServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req models.RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	for wallet, h := range ts.histories {
		for i, rec := range h.Rollbacks {
			if rec.ID != req.RollbackID {
				continue
			}
			if !rec.Retryable() {
				writeError(w, http.StatusConflict, models.ErrCodeRollback, "rollback is "+string(rec.Status))
				return
			}
			rec.Status = models.RollbackPending
			rec.Attempts++
			rec.Error = ""
			rec.UpdatedAt = time.Now().UTC()
			h.Rollbacks[i] = rec
			ts.histories[wallet] = h
			writeJSON(w, rec)
			return
		}
	}

	writeError(w, http.StatusNotFound, models.ErrCodeNotFound, "Rollback not found")
}

func (ts *TestServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req models.WalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	wallet := models.NormalizeAddress(req.WalletAddress)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	user, ok := ts.users[wallet]
	if !ok {
		writeError(w, http.StatusNotFound, models.ErrCodeNotFound, "User not found")
		return
	}

	now := time.Now().UTC()
	status := &models.MonitorStatus{
		WalletAddress:  wallet,
		Active:         true,
		InactivityDays: user.InactivityDays,
		LastActivity:   now,
		NextCheck:      now.Add(24 * time.Hour),
	}
	ts.monitors[wallet] = status
	user.MonitoringActive = true
	writeJSON(w, status)
}

func (ts *TestServer) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	wallet := models.NormalizeAddress(r.PathValue("wallet"))

	ts.mu.RLock()
	status, ok := ts.monitors[wallet]
	ts.mu.RUnlock()

	if !ok {
		writeJSON(w, models.MonitorStatus{WalletAddress: wallet})
		return
	}
	writeJSON(w, status)
}

func (ts *TestServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var sub models.SubscribeMessage
	if err := conn.ReadJSON(&sub); err != nil {
		return
	}

	ts.mu.RLock()
	queued := append([]models.ActivityEvent(nil), ts.activity[models.NormalizeAddress(sub.WalletAddress)]...)
	ts.mu.RUnlock()

	for _, ev := range queued {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// TestContext creates a test context with reasonable timeout.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// TestConfigWithDir creates a test configuration rooted at dataDir.
func TestConfigWithDir(dataDir, baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.API.RetryDelay = 10 * time.Millisecond
	cfg.Encryption.Key = TestKeyMaterial
	cfg.Storage.DataDir = dataDir
	cfg.Storage.StateDir = filepath.Join(dataDir, "state")
	cfg.Monitor.PingInterval = time.Second
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	return cfg
}

// LogOutput captures JSON log output for testing.
type LogOutput struct {
	mu      sync.RWMutex
	entries []LogEntry
	raw     []string
}

// NewLogOutput creates a new log output capturer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Write implements io.Writer to capture log output.
func (lo *LogOutput) Write(p []byte) (n int, err error) {
	lo.mu.Lock()
	defer lo.mu.Unlock()

	lo.raw = append(lo.raw, string(p))

	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err == nil {
		entry := LogEntry{Fields: fields}
		entry.Level, _ = fields["level"].(string)
		entry.Message, _ = fields["msg"].(string)
		lo.entries = append(lo.entries, entry)
	}
	return len(p), nil
}

// Entries returns captured log entries.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	entries := make([]LogEntry, len(lo.entries))
	copy(entries, lo.entries)
	return entries
}

// HasMessage checks if any log entry contains the message.
func (lo *LogOutput) HasMessage(message string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, entry := range lo.entries {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

// Contains reports whether any captured line contains s.
func (lo *LogOutput) Contains(s string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, line := range lo.raw {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}

// SkipIfShort skips test if testing.Short() is true.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}
