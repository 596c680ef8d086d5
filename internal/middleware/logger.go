package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/natefinch/lumberjack.v2"
)

var appLogger *log.Logger

// InitLogger initializes file-based logging with rotation. Output goes to
// both stdout and a dated log file under logDir.
func InitLogger(logDir string) error {
	absLogDir, err := filepath.Abs(logDir)
	if err != nil {
		absLogDir = logDir
	}

	if err := os.MkdirAll(absLogDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", absLogDir, err)
	}

	currentDate := time.Now().Format("2006-01-02")

	appLogFile := &lumberjack.Logger{
		Filename:   filepath.Join(absLogDir, fmt.Sprintf("app-%s.log", currentDate)),
		MaxSize:    10, // MB
		MaxBackups: 30,
		MaxAge:     30, // days
		Compress:   true,
		LocalTime:  true,
	}

	appLogger = log.New(io.MultiWriter(os.Stdout, appLogFile), "", log.LstdFlags)

	log.SetOutput(io.MultiWriter(os.Stdout, appLogFile))
	log.SetFlags(log.LstdFlags)

	appLogger.Printf("[INFO] Logger initialized, log directory: %s", absLogDir)
	return nil
}

// LogInfo logs info level messages
func LogInfo(format string, v ...interface{}) {
	if appLogger != nil {
		appLogger.Printf("[INFO] "+format, v...)
	} else {
		log.Printf("[INFO] "+format, v...)
	}
}

// LogError logs error level messages
func LogError(format string, v ...interface{}) {
	if appLogger != nil {
		appLogger.Printf("[ERROR] "+format, v...)
	} else {
		log.Printf("[ERROR] "+format, v...)
	}
}

// RequestLoggerMiddleware logs every request with status and latency
func RequestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		fullURL := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			fullURL = fullURL + "?" + c.Request.URL.RawQuery
		}

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		if statusCode >= 400 {
			LogError("%s %s | status=%d | latency=%v",
				c.Request.Method, fullURL, statusCode, latency)
		} else {
			LogInfo("%s %s | status=%d | latency=%v",
				c.Request.Method, fullURL, statusCode, latency)
		}
	}
}

// OrderLoggerMiddleware logs the full request body for order-mutating
// endpoints. Fund movements hang off these requests, so the raw payload is
// worth its disk space when reconciling a dispute.
func OrderLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var bodyBytes []byte
		if c.Request.Body != nil {
			bodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		fullURL := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			fullURL = fullURL + "?" + c.Request.URL.RawQuery
		}

		bodyStr := string(bodyBytes)
		if bodyStr == "" {
			bodyStr = "(empty)"
		} else if len(bodyStr) > 1000 {
			bodyStr = bodyStr[:1000] + "..."
		}

		LogInfo("ORDER %s %s body=%s", c.Request.Method, fullURL, bodyStr)

		c.Next()

		LogInfo("ORDER %s %s | status=%d | latency=%v",
			c.Request.Method, fullURL, c.Writer.Status(), time.Since(startTime))
	}
}
