package entity

// MaxHistoryPerType 每种内容类型保留的历史条数
const MaxHistoryPerType = 5

// ContentHistory 按内容类型保存最近生成的文本，旧的先淘汰
type ContentHistory map[ContentType][]string

// Append 追加一条历史，超过上限时淘汰最旧的一条
func (h ContentHistory) Append(ct ContentType, text string) {
	entries := append(h[ct], text)
	if over := len(entries) - MaxHistoryPerType; over > 0 {
		entries = append([]string(nil), entries[over:]...)
	}
	h[ct] = entries
}

// Get 返回某类型历史的副本（旧 → 新）
func (h ContentHistory) Get(ct ContentType) []string {
	return append([]string(nil), h[ct]...)
}

// Clone 深拷贝
func (h ContentHistory) Clone() ContentHistory {
	out := make(ContentHistory, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}
