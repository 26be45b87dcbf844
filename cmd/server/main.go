package main

import "statpay/internal/app/server"

func main() {
	server.Run()
}
