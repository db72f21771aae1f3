package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthChecker 数据库健康探测。引擎落库是旁路写，数据库短暂不可用
// 不阻塞去重与聚类，这里只维护状态供监控与启动恢复判断。
type HealthChecker struct {
	db       *sql.DB
	logger   *logrus.Logger
	interval time.Duration

	mu        sync.RWMutex
	healthy   bool
	lastCheck time.Time
	lastError error
	stopChan  chan struct{}
	running   bool
}

// HealthResult 健康探测结果
type HealthResult struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// NewHealthChecker 创建健康探测器
func NewHealthChecker(db *sql.DB, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		db:       db,
		logger:   logger,
		interval: 30 * time.Second,
		stopChan: make(chan struct{}),
	}
}

// SetInterval 设置探测间隔
func (hc *HealthChecker) SetInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.interval = interval
}

// Check 执行单次探测
func (hc *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := hc.db.PingContext(ctx)

	hc.mu.Lock()
	hc.lastCheck = time.Now()
	if err != nil {
		hc.lastError = err
		hc.healthy = false
		hc.mu.Unlock()
		hc.logger.WithField("error", err.Error()).Warn("Database health check failed")
		return err
	}
	restored := !hc.healthy
	hc.lastError = nil
	hc.healthy = true
	hc.mu.Unlock()

	if restored {
		hc.logger.Info("Database connection restored")
	}
	return nil
}

// Start 启动周期探测，阻塞到ctx取消或Stop被调用
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.mu.Lock()
	if hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = true
	interval := hc.interval
	hc.mu.Unlock()

	hc.logger.Info("Starting database health checker")
	hc.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hc.markStopped()
			return
		case <-hc.stopChan:
			hc.markStopped()
			return
		case <-ticker.C:
			hc.Check(ctx)
		}
	}
}

// Stop 停止周期探测
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if !hc.running {
		return
	}
	close(hc.stopChan)
}

func (hc *HealthChecker) markStopped() {
	hc.mu.Lock()
	hc.running = false
	hc.mu.Unlock()
	hc.logger.Info("Database health checker stopped")
}

// IsHealthy 当前健康状态
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.healthy
}

// Result 当前探测结果
func (hc *HealthChecker) Result() HealthResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	result := HealthResult{
		Healthy:   hc.healthy,
		LastCheck: hc.lastCheck,
	}
	if hc.lastError != nil {
		result.LastError = hc.lastError.Error()
	}
	return result
}
