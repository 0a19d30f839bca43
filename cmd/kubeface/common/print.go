/*
Copyright 2018 Gravitational, Inc.

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

// Package common holds the top-level error rendering shared by every
// kubeface subcommand, grounded on the teacher's tool/common package.
package common

import (
	"os"

	"github.com/fatih/color"
	"github.com/gravitational/trace"
)

// PrintError prints a red, user-facing error message to stderr.
func PrintError(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "[ERROR]: %v\n", trace.UserMessage(err))
}
