package id

import "github.com/google/uuid"

// New 生成带前缀的唯一 ID：prefix + "_" + UUIDv7。
// v7 按毫秒时间有序，便于日志阅读与按插入顺序排查。
func New(prefix string) string {
	u, err := uuid.NewV7()
	if err != nil {
		// 时钟/随机源异常时退化为 v4。
		u = uuid.New()
	}
	return prefix + "_" + u.String()
}
