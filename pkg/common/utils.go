// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package common

import (
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

func GetEnvInt(key string, fallback int) int {
	str := GetEnv(key, strconv.Itoa(fallback))
	val, err := strconv.Atoi(str)
	if err != nil {
		return fallback
	}

	return val
}

// SetupLogger configures the standard logrus logger with the JSON formatter and the given level.
func SetupLogger(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{PrettyPrint: false})
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("unknown log level %q, falling back to info", level)
		logLevel = logrus.InfoLevel
	}
	logrus.SetLevel(logLevel)
}

// LogJSONFormatter is printing the data in log
func LogJSONFormatter(data interface{}) string {
	response, err := json.Marshal(data)
	if err != nil {
		logrus.Errorf("failed to marshal json.")

		return ""
	}

	return string(response)
}
