/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package general

import (
	"fmt"

	"k8s.io/klog/v2"
)

// callerDepth skips the helper frame so klog reports the caller's file:line
const callerDepth = 1

func Infof(format string, args ...interface{}) {
	klog.InfoDepth(callerDepth, fmt.Sprintf(format, args...))
}

// InfofV logs only when klog verbosity is at least level
func InfofV(level int, format string, args ...interface{}) {
	if klog.V(klog.Level(level)).Enabled() {
		klog.InfoDepth(callerDepth, fmt.Sprintf(format, args...))
	}
}

func Warningf(format string, args ...interface{}) {
	klog.WarningDepth(callerDepth, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	klog.ErrorDepth(callerDepth, fmt.Sprintf(format, args...))
}
