// Command glaciersmooth smooths ice-surface elevation grids with a kernel
// whose bandwidth follows the local ice thickness.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := Root.Execute(); err != nil {
		logrus.WithError(err).Error("glaciersmooth failed")
		os.Exit(1)
	}
}
