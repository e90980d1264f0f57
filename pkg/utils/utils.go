// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package utils

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateUUID generates uuid without hyphens.
func GenerateUUID() string {
	id, _ := uuid.NewRandom()
	return strings.ReplaceAll(id.String(), "-", "")
}

// NewUniverseID generates a lexically sortable id, so forks of a game order after their parent.
func NewUniverseID() string {
	return ulid.Make().String()
}
