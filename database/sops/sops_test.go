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

package sops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabledFromEnv(t *testing.T) {
	t.Setenv(EnvGcpKmsResourceID, "")
	t.Setenv(EnvAwsKmsKeyArns, "")
	assert.False(t, Enabled())
	t.Setenv(EnvAwsKmsKeyArns, "arn:aws:kms:us-east-1:000000000000:key/test")
	assert.True(t, Enabled())
}

func TestMaybeEncryptPassthrough(t *testing.T) {
	t.Setenv(EnvGcpKmsResourceID, "")
	t.Setenv(EnvAwsKmsKeyArns, "")
	in := []byte(`{"transactionId":"abc"}`)
	out, err := MaybeEncrypt(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	out, err = MaybeDecrypt(out)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncryptWithoutKeys(t *testing.T) {
	t.Setenv(EnvGcpKmsResourceID, "")
	t.Setenv(EnvAwsKmsKeyArns, "")
	_, err := Encrypt([]byte("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one master key")
}

func TestIsEncrypted(t *testing.T) {
	assert.False(t, IsEncrypted([]byte("plain")))
	assert.False(t, IsEncrypted([]byte(`{"data":"x"}`)))
	assert.True(t, IsEncrypted([]byte(`{"data":"x","sops":{}}`)))
}
