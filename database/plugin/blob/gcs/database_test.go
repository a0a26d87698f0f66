// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gcs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialValidation(t *testing.T) {
	tempDir := t.TempDir()
	existing := filepath.Join(tempDir, "credentials.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0o600))

	tests := []struct {
		name            string
		credentialsFile string
		errorMessage    string
	}{
		{name: "valid credentials file", credentialsFile: existing},
		{
			name:            "nonexistent credentials file",
			credentialsFile: filepath.Join(tempDir, "nonexistent.json"),
			errorMessage:    "GCS credentials file does not exist",
		},
		{name: "empty credentials file path", credentialsFile: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCredentials(tt.credentialsFile)
			if tt.errorMessage == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMessage)
		})
	}
}

func TestParseURL(t *testing.T) {
	bucket, prefix, err := parseURL("gcs://receipts/herd/ledger/")
	require.NoError(t, err)
	assert.Equal(t, "receipts", bucket)
	assert.Equal(t, "herd/ledger", prefix)

	_, _, err = parseURL("s3://receipts")
	require.Error(t, err)
	_, _, err = parseURL("gcs://")
	require.Error(t, err)
}

func TestStartRequiresBucket(t *testing.T) {
	store, err := NewWithOptions()
	require.NoError(t, err)
	require.ErrorContains(t, store.Start(), "bucket not set")
}

func TestObjectName(t *testing.T) {
	store, err := NewWithOptions(WithBucket("b"), WithPrefix("p"))
	require.NoError(t, err)
	assert.Equal(t, "p/receipt/1", store.objectName([]byte("receipt/1")))
	store.prefix = ""
	assert.Equal(t, "receipt/1", store.objectName([]byte("receipt/1")))
}
