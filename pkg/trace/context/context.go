// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package context

import (
	"context"
	"runtime"
	"sync"

	"github.com/timandy/routine"
	"go.opentelemetry.io/otel/trace"
)

const bucketsSize = 128
const armSystem = "arm64"

type (
	contextBucket struct {
		lock sync.RWMutex
		data map[uint64]context.Context
	}
	contextBuckets struct {
		buckets [bucketsSize]*contextBucket
	}
)

// goroutine id -> context, sharded to keep lock contention low
var goroutineContext contextBuckets

func init() {
	for i := range goroutineContext.buckets {
		goroutineContext.buckets[i] = &contextBucket{
			data: make(map[uint64]context.Context),
		}
	}
}

func bucketFor(goid uint64) *contextBucket {
	return goroutineContext.buckets[goid%bucketsSize]
}

// GetContext returns the context bound to the calling goroutine, or nil.
func GetContext() context.Context {
	if runtime.GOARCH == armSystem {
		return nil
	}
	goid := routine.Goid()
	bucket := bucketFor(goid)
	bucket.lock.RLock()
	ctx := bucket.data[goid]
	bucket.lock.RUnlock()
	return ctx
}

// SetContext binds ctx to the calling goroutine.
func SetContext(ctx context.Context) {
	if runtime.GOARCH == armSystem {
		return
	}
	goid := routine.Goid()
	bucket := bucketFor(goid)
	bucket.lock.Lock()
	bucket.data[goid] = ctx
	bucket.lock.Unlock()
}

// ClearContext removes the binding for the calling goroutine.
func ClearContext() {
	if runtime.GOARCH == armSystem {
		return
	}
	goid := routine.Goid()
	bucket := bucketFor(goid)
	bucket.lock.Lock()
	delete(bucket.data, goid)
	bucket.lock.Unlock()
}

// RunWithContext runs fn with ctx bound to the current goroutine.
func RunWithContext(ctx context.Context, fn func(ctx context.Context)) {
	SetContext(ctx)
	defer ClearContext()
	fn(ctx)
}

// ContextWithSpan copies the goroutine-bound span into ctx when ctx has none.
func ContextWithSpan(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if trace.SpanFromContext(ctx).SpanContext().IsValid() {
		return ctx
	}
	if pct := GetContext(); pct != nil {
		if span := trace.SpanFromContext(pct); span.SpanContext().IsValid() {
			ctx = trace.ContextWithSpan(ctx, span)
		}
	}
	return ctx
}
