package core

// ═══════════════════════════════════════════════════════════════════════════
// 类型转换辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// GetInt64 将 any 类型安全转换为 int64
//
// 支持 float64（JSON 数字的默认类型）、int、int64，其他类型返回 0。
//
// 使用场景：
//   - 解析 API 响应中的 token 数量
//   - 解析流式响应中的索引
func GetInt64(val any) int64 {
	switch v := val.(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

// GetInt 将 any 类型安全转换为 int
func GetInt(val any) int {
	return int(GetInt64(val))
}

// GetFloat64 将 any 类型安全转换为 float64
//
// 支持 float64、int、int64，其他类型返回 0.0。
func GetFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// GetString 将 any 类型安全转换为 string
//
// 非字符串返回 ""。
//
// 使用场景：
//   - 解析 API 响应中的字符串字段
//   - 解析流式响应中的 ID、名称等
func GetString(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// GetMap 将 any 类型安全转换为 map[string]any
//
// 非对象返回 nil。
func GetMap(val any) map[string]any {
	if m, ok := val.(map[string]any); ok {
		return m
	}
	return nil
}

// GetSlice 将 any 类型安全转换为 []any
//
// 非数组返回 nil。
func GetSlice(val any) []any {
	if s, ok := val.([]any); ok {
		return s
	}
	return nil
}
