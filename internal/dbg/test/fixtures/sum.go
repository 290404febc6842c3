package main

import "fmt"

func sum(n int) int {
	total := 0
	for i := 0; i < n; i++ {
		total += i
	}
	return total
}

func main() {
	r := sum(3)
	fmt.Println(r)
}
