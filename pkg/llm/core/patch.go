package core

import (
	"sort"
	"strconv"
	"strings"

	"github.com/KitsuneX07/kotoba/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 请求 Patch 引擎
// ═══════════════════════════════════════════════════════════════════════════

// CompiledPatch 编译后的请求 Patch
//
// 删除路径在编译期解析并校验，畸形路径在 Adapter 构造时就以
// InvalidConfig 暴露，绝不留到调用中途。Apply 是纯转换：输入一律
// 不被修改，返回全新的结构，配置对象可以安全复用。
type CompiledPatch struct {
	url      *string
	body     map[string]any
	headers  map[string]*string
	removals [][]string
}

// CompilePatch 编译请求 Patch
//
// patch 为 nil 时返回 nil（调用方按无 Patch 处理）。
func CompilePatch(patch *llm.RequestPatch) (*CompiledPatch, error) {
	if patch == nil {
		return nil, nil
	}

	compiled := &CompiledPatch{
		url:     patch.URL,
		body:    patch.Body,
		headers: patch.Headers,
	}

	for _, path := range patch.RemoveFields {
		segments, err := parseRemovalPath(path)
		if err != nil {
			return nil, err
		}
		compiled.removals = append(compiled.removals, segments)
	}
	sortRemovals(compiled.removals)

	return compiled, nil
}

// Apply 应用 Patch，顺序固定：URL → Body 合并 → Headers → 字段删除
func (p *CompiledPatch) Apply(url string, headers map[string]string, body map[string]any) (string, map[string]string, map[string]any) {
	newURL := url
	if p.url != nil {
		newURL = *p.url
	}

	newBody := DeepMerge(body, p.body)

	newHeaders := make(map[string]string, len(headers))
	for name, value := range headers {
		newHeaders[name] = value
	}
	for name, value := range p.headers {
		if value == nil {
			delete(newHeaders, name)
		} else {
			newHeaders[name] = *value
		}
	}

	for _, segments := range p.removals {
		newBody, _ = removeAtPath(newBody, segments).(map[string]any)
	}

	return newURL, newHeaders, newBody
}

// ═══════════════════════════════════════════════════════════════════════════
// JSON 深度合并
// ═══════════════════════════════════════════════════════════════════════════

// maxMergeDepth 合并递归的防御上限
const maxMergeDepth = 64

// DeepMerge 递归合并 patch 到 original，返回全新结构
//
// 两侧在同一键上都是对象时逐键递归（patch 缺少的键保留原值）；
// 任一侧不是对象（标量或数组）时 patch 值整体替换，数组绝不逐元素
// 合并。超过防御性深度上限时以 patch 侧为准截断。
func DeepMerge(original, patch map[string]any) map[string]any {
	return mergeMaps(original, patch, 0)
}

func mergeMaps(original, patch map[string]any, depth int) map[string]any {
	merged := make(map[string]any, len(original)+len(patch))
	for key, value := range original {
		merged[key] = copyValue(value)
	}
	for key, patchValue := range patch {
		if depth < maxMergeDepth {
			origMap, origOK := merged[key].(map[string]any)
			patchMap, patchOK := patchValue.(map[string]any)
			if origOK && patchOK {
				merged[key] = mergeMaps(origMap, patchMap, depth+1)
				continue
			}
		}
		merged[key] = copyValue(patchValue)
	}
	return merged
}

// copyValue 深拷贝 JSON 值树（map/slice 复制，标量原样）
func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		copied := make(map[string]any, len(v))
		for key, item := range v {
			copied[key] = copyValue(item)
		}
		return copied
	case []any:
		copied := make([]any, len(v))
		for i, item := range v {
			copied[i] = copyValue(item)
		}
		return copied
	default:
		return v
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 字段删除
// ═══════════════════════════════════════════════════════════════════════════

// parseRemovalPath 解析点分隔的删除路径
func parseRemovalPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, llm.NewInvalidConfigError("remove_fields", "removal path must not be empty")
	}
	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if segment == "" {
			return nil, llm.NewInvalidConfigError("remove_fields", "removal path "+strconv.Quote(path)+" contains an empty segment")
		}
	}
	return segments, nil
}

// sortRemovals 对指向同一数组的删除路径按下标降序排列
//
// 先删小下标会让后续大下标引用漂移，降序应用避免失效。
// 比较器是全序：先按父路径字典序分组，组内末段数字降序，
// 这样即使同数组的路径在输入中被其他路径隔开也会聚拢排序。
func sortRemovals(removals [][]string) {
	sort.SliceStable(removals, func(i, j int) bool {
		a, b := removals[i], removals[j]
		if c := comparePrefix(a, b); c != 0 {
			return c < 0
		}
		al, bl := a[len(a)-1], b[len(b)-1]
		ai, aErr := strconv.Atoi(al)
		bi, bErr := strconv.Atoi(bl)
		if aErr == nil && bErr == nil {
			return ai > bi
		}
		return al < bl
	})
}

// comparePrefix 比较末段之前的路径前缀，短前缀视为较小
func comparePrefix(a, b []string) int {
	an, bn := len(a)-1, len(b)-1
	for i := 0; i < an && i < bn; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	default:
		return 0
	}
}

// removeAtPath 在值树中删除指定路径，返回（可能更新后的）容器
//
// 段匹配对象键或数组下标；删除数组元素后后续元素前移。
// 路径不存在是 no-op，绝不报错。
func removeAtPath(node any, segments []string) any {
	if len(segments) == 0 {
		return node
	}
	segment := segments[0]

	switch container := node.(type) {
	case map[string]any:
		child, ok := container[segment]
		if !ok {
			return container
		}
		if len(segments) == 1 {
			delete(container, segment)
			return container
		}
		container[segment] = removeAtPath(child, segments[1:])
		return container

	case []any:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(container) {
			return container
		}
		if len(segments) == 1 {
			// 删除并前移
			return append(container[:index], container[index+1:]...)
		}
		container[index] = removeAtPath(container[index], segments[1:])
		return container

	default:
		return node
	}
}
