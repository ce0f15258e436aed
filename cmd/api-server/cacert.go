package main

import (
	"fmt"
	"net/http"
	"os"
)

// caCertPath CA 证书下载路径
const caCertPath = "/ca.pem"

// withCACertEndpoint 在 /ca.pem 提供 CA 证书下载
//
// 仅用于自签名证书模式，方便客户端（浏览器、portalctl --ca）信任 CA。
func withCACertEndpoint(next http.Handler, caFile string) (http.Handler, error) {
	caData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file %s: %w", caFile, err)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == caCertPath && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/x-pem-file")
			w.Header().Set("Content-Disposition", `attachment; filename="payments-portal-ca.pem"`)
			w.WriteHeader(http.StatusOK)
			w.Write(caData)
			return
		}
		next.ServeHTTP(w, r)
	}), nil
}
