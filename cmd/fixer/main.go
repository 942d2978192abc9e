/**
 * fixer, the Box ownership-repair tool
 *
 * Author: box-fixer team
 */

package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
