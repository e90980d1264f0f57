// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUID(t *testing.T) {
	id := GenerateUUID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, GenerateUUID())
}

func TestNewUniverseID(t *testing.T) {
	first := NewUniverseID()
	second := NewUniverseID()
	assert.Len(t, first, 26)
	assert.NotEqual(t, first, second)
}
