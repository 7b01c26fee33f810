// alatacraft は手工芸品ストアフロントのバックエンドを起動するコマンド。
// サブコマンドとして serve / worker / reconcile / seed / healthcheck を持つ。
package main

import (
	"fmt"
	"os"

	"github.com/proditifgorut/alatacraft/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "alatacraft: %v\n", err)
		os.Exit(1)
	}
}
