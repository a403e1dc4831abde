package barcode

import (
	"regexp"
	"strconv"
	"strings"

	"safebite-api/internal/pkg/common"
)

// 條碼必須是 8 到 14 位的純數字（EAN-8 到 GTIN-14）
var barcodePattern = regexp.MustCompile(`^[0-9]{8,14}$`)

// Normalize 驗證並正規化條碼，回傳去除前後空白的數字字串
// 不符合格式一律回傳 ErrInvalidBarcode，純函數、無副作用
func Normalize(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if !barcodePattern.MatchString(cleaned) {
		return "", common.ErrInvalidBarcode
	}
	return cleaned, nil
}

// LookupKeys 回傳查詢儲存層時要比對的所有表示形式
// 歷史資料的條碼有字串與數值兩種存法，數值形式會吃掉前導零，
// 所以除了正規鍵之外還要比對去零後的數字字串
func LookupKeys(canonical string) []string {
	keys := []string{canonical}
	if n, err := strconv.ParseUint(canonical, 10, 64); err == nil {
		numeric := strconv.FormatUint(n, 10)
		if numeric != canonical {
			keys = append(keys, numeric)
		}
	}
	return keys
}
