/**
 * ScaleOCR CLI
 *
 * Runs the extraction cascade against a local image without the queue,
 * database or cache. Useful for tuning strategies on sample photos.
 */

package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
