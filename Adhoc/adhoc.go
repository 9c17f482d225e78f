package Adhoc

import (
	"context"
	"fmt"
	"net"
	"time"

	"IntakeDetServer/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ServiceName    = "cbd-intake-detection"
	TimeOutSeconds = 5
)

type RegisterRequest struct {
	Id          string `json:"id"`
	IP          string `json:"ip"`
	Port        int    `json:"port"`
	Service     string `json:"service"`
	ModelLoaded bool   `json:"model_loaded"`
	TimeStamp   int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

// Heartbeat announces this instance to a registry server on a fixed
// interval. The instance id is fixed for the life of the process.
type Heartbeat struct {
	ID       string
	IP       string
	Port     int
	Interval time.Duration
	Loaded   func() bool

	url    string
	client *resty.Client
}

func NewHeartbeat(host string, port int, ip string, servicePort int, interval time.Duration, loaded func() bool) *Heartbeat {
	if interval <= 0 {
		interval = TimeOutSeconds * time.Second
	}
	if loaded == nil {
		loaded = func() bool { return false }
	}
	return &Heartbeat{
		ID:       uuid.NewString(),
		IP:       ip,
		Port:     servicePort,
		Interval: interval,
		Loaded:   loaded,
		url:      fmt.Sprintf("http://%s/api/register", net.JoinHostPort(host, fmt.Sprint(port))),
		client:   resty.New().SetTimeout(TimeOutSeconds * time.Second),
	}
}

// SendAliveMessage posts one registration. Callers log the error.
func (h *Heartbeat) SendAliveMessage(ctx context.Context) (*RegisterResponse, error) {
	var respBody RegisterResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(RegisterRequest{
			Id:          h.ID,
			IP:          h.IP,
			Port:        h.Port,
			Service:     ServiceName,
			ModelLoaded: h.Loaded(),
			TimeStamp:   time.Now().Unix(),
		}).
		SetResult(&respBody).
		Post(h.url)
	if err != nil {
		return nil, fmt.Errorf("register request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("registry returned %s: %s", resp.Status(), resp.String())
	}
	return &respBody, nil
}

// Run sends a registration immediately and then every Interval until ctx
// is cancelled. Failures are logged and never stop the loop.
func (h *Heartbeat) Run(ctx context.Context) {
	send := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error(fmt.Sprintf("SendAliveMessage panic recovered: %v", r))
			}
		}()
		if _, err := h.SendAliveMessage(ctx); err != nil && ctx.Err() == nil {
			logger.Log().Warn("registry heartbeat failed", zap.String("url", h.url), zap.Error(err))
		}
	}

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	send()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("Heartbeat context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			send()
		}
	}
}

// GetOutboundIP returns the local address used to reach the internet, or
// loopback when there is no route.
func GetOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
