package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"lablink/models"
)

// Config 从环境变量读取
type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	RedisAddr string
	RedisPwd  string
	WebOrigin string
	Port      string

	SessionTTL   time.Duration
	AdminUserIDs []string
	// STAFF_ASSIGNMENTS="userID:departmentID:role,..."; empty department = global
	StaffSeed []models.StaffAssignment

	MaintenanceWebhookURL string
	DispatchInterval      time.Duration
	DispatchBatch         int
	DispatchRate          float64
}

func (c Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

func LoadConfig() Config {
	get := func(k, def string) string {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		return v
	}
	ttl := 24 * time.Hour
	if n, err := strconv.Atoi(get("SESSION_TTL_SECONDS", "")); err == nil && n > 0 {
		ttl = time.Duration(n) * time.Second
	}
	interval := 2 * time.Second
	if d, err := time.ParseDuration(get("DISPATCH_INTERVAL", "")); err == nil && d > 0 {
		interval = d
	}
	batch, err := strconv.Atoi(get("DISPATCH_BATCH", "50"))
	if err != nil || batch <= 0 {
		batch = 50
	}
	perSec, err := strconv.ParseFloat(get("DISPATCH_RATE", "20"), 64)
	if err != nil || perSec < 0 {
		perSec = 20
	}

	return Config{
		DBHost:     get("DB_HOST", "127.0.0.1"),
		DBUser:     get("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     get("DB_NAME", "lablink"),
		DBPort:     get("DB_PORT", "5432"),
		DBSSLMode:  get("DB_SSLMODE", "disable"),

		RedisAddr: get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:  os.Getenv("REDIS_PASSWORD"),
		WebOrigin: get("WEB_ORIGIN", "http://localhost:5173"),
		Port:      get("PORT", "3001"),

		SessionTTL:   ttl,
		AdminUserIDs: splitCSV(os.Getenv("ADMIN_USER_IDS")),
		StaffSeed:    parseStaff(os.Getenv("STAFF_ASSIGNMENTS")),

		MaintenanceWebhookURL: os.Getenv("MAINTENANCE_WEBHOOK_URL"),
		DispatchInterval:      interval,
		DispatchBatch:         batch,
		DispatchRate:          perSec,
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseStaff 解析 "uid:dept:role"，格式不对的条目直接跳过
func parseStaff(s string) []models.StaffAssignment {
	var out []models.StaffAssignment
	for _, entry := range splitCSV(s) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			continue
		}
		out = append(out, models.StaffAssignment{
			UserID:       parts[0],
			DepartmentID: parts[1],
			Role:         parts[2],
		})
	}
	return out
}
