package cache

import "fmt"

func CatsListKey(page, limit int, tag string) string {
	return fmt.Sprintf("cats:list:%d:%d:%s", page, limit, tag)
}

func RateLimitKey(addr string) string {
	return fmt.Sprintf("ratelimit:%s", addr)
}
