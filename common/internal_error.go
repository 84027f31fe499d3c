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

package common

import (
	"github.com/google/uuid"
	"github.com/spirit-labs/streamflow/errors"
	log "github.com/spirit-labs/streamflow/logger"
)

// LogInternalError logs err with its stack under a new reference and returns an InternalError carrying only
// the reference.
func LogInternalError(err error) errors.StreamflowError {
	ref := uuid.New().String()
	log.Errorf("internal error %s: %+v", ref, err)
	return errors.NewInternalError(ref)
}
