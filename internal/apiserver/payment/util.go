package payment

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"
)

// writeJSON 写入 JSON 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 写入错误响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// generateReference 生成付款参考号
// 格式：PAY-<毫秒时间戳>-<9 位大写 base36>
func generateReference(now time.Time) string {
	suffix := make([]byte, 9)
	radix := big.NewInt(int64(len(base36)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			panic(fmt.Sprintf("payment: crypto/rand failed: %v", err))
		}
		suffix[i] = base36[n.Int64()]
	}
	return "PAY-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix)
}

// flexString 兼容字符串和数字两种 JSON 写法（金额字段）
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
