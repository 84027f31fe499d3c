// Copyright 2024 The Tektite Authors
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

package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNamedLoggerFollowsGlobalLevel(t *testing.T) {
	config := Config{Level: "warn", Format: "console"}
	require.NoError(t, config.Configure())
	defer Initialise(zap.InfoLevel, "console")

	l := GetLogger("follows-global")
	require.Equal(t, "follows-global", l.Name())
	require.False(t, l.Enabled(zap.InfoLevel))
	require.True(t, l.Enabled(zap.WarnLevel))
	l.Infof("not written %d", 1)
	l.Warnf("written %s", "warn")

	// the same name returns the same logger, the level is not overridden
	same := GetLoggerWithLevel("follows-global", zap.DebugLevel)
	require.Same(t, l, same)
	require.False(t, same.Enabled(zap.DebugLevel))

	config = Config{Level: "debug", Format: "json"}
	require.NoError(t, config.Configure())
	require.True(t, DebugEnabled)
	require.True(t, l.Enabled(zap.DebugLevel))
	l.Debugf("debug %d", 2)
	l.Errorf("error %d", 3)
}

func TestNamedLoggerWithOwnLevel(t *testing.T) {
	l := GetLoggerWithLevel("own-level", zap.ErrorLevel)
	require.False(t, l.Enabled(zap.WarnLevel))
	require.True(t, l.Enabled(zap.ErrorLevel))

	Initialise(zap.DebugLevel, "console")
	defer Initialise(zap.InfoLevel, "console")
	require.False(t, l.Enabled(zap.WarnLevel))
}

func TestGlobalLogger(t *testing.T) {
	Initialise(zap.DebugLevel, "json")
	defer Initialise(zap.InfoLevel, "console")
	require.True(t, DebugEnabled)
	Debug("debug 1", " debug 2")
	Debugf("debug %d debug %d", 1, 2)
	Info("info 1", " info 2")
	Infof("info %d info %d", 1, 2)
	Warnf("warn %d", 1)
	Error("error 1", " error 2")
	Errorf("error %d error %d", 1, 2)

	Initialise(zap.InfoLevel, "console")
	require.False(t, DebugEnabled)
}

func TestInvalidFormat(t *testing.T) {
	config := Config{
		Level:  "info",
		Format: "xml",
	}
	require.Error(t, config.Configure())
	config = Config{
		Level:  "loud",
		Format: "console",
	}
	require.Error(t, config.Configure())
}
