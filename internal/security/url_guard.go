package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/proditifgorut/alatacraft/internal/model"
)

// URLGuardService は外部URLの検証とSSRF防止機能のインターフェースを定義する。
// 商品の画像URL登録時の事前検証と、IdPへの外向きHTTP呼び出しの両方で使用される。
type URLGuardService interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// safeurlライブラリにより、プライベートIP、ループバック、リンクローカル、
	// メタデータIPへのリクエストが自動的にブロックされる。
	// DNS再バインディング攻撃への対策も有効化される。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateImageURL は商品画像URLの安全性を事前に検証する。
	// スキーム、ホスト、IPアドレスの検証を行い、
	// 不正な形式はValidationFailure、危険な宛先はSSRFブロックとして返す。
	ValidateImageURL(rawURL string) error
}

// allowedSchemes は画像URLで許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はブロックされるネットワーク範囲。
// パッケージ初期化時に1回だけパースし、ValidateImageURLでの検証に使用する。
// safeurlはnet.DialerレベルでDNS解決後のIPアドレスも検証するため、
// DNS再バインディング攻撃にも対応している。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// urlGuard はURLGuardServiceの実装。
type urlGuard struct{}

// NewURLGuard はURLGuardServiceの新しいインスタンスを生成する。
func NewURLGuard() *urlGuard {
	return &urlGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlのデフォルト設定により以下がブロックされる:
//   - プライベートIPアドレス (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
//   - ループバックアドレス (127.0.0.0/8, ::1)
//   - リンクローカルアドレス (169.254.0.0/16, fe80::/10)
//   - メタデータIPアドレス (169.254.169.254)
//
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディング攻撃にも対応している。
// OAuthのトークン交換とユーザー情報取得の外向き呼び出しに使用する。
func (g *urlGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// ValidateImageURL は商品画像URLの安全性を事前に検証する。
// DNS解決を伴わない静的な検証で、カタログ書き込みのたびに呼ばれる。
// 画像URLはストアがサーバー側で取得することはないが、閲覧者のブラウザを
// 内部ネットワークへ向けるURLを最初から保存させない。
func (g *urlGuard) ValidateImageURL(rawURL string) error {
	if rawURL == "" {
		return model.NewInvalidURLError("URLが空です")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.NewInvalidURLError(fmt.Sprintf("解析できないURLです: %s", rawURL))
	}

	// スキーム検証: http/httpsのみ許可
	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return model.NewInvalidURLError(fmt.Sprintf("許可されていないスキームです: %s", scheme))
	}

	// ホスト検証: 空ホストを拒否
	host := parsed.Hostname()
	if host == "" {
		return model.NewInvalidURLError(fmt.Sprintf("ホストがありません: %s", rawURL))
	}

	// IPアドレスの場合: ブロック対象CIDRとの照合
	ip := net.ParseIP(host)
	if ip != nil {
		if isBlockedIP(ip) {
			return model.NewSSRFBlockedError()
		}
		return nil
	}

	// ホスト名の場合: localhost等の危険なホスト名を拒否
	if isBlockedHostname(host) {
		return model.NewSSRFBlockedError()
	}

	return nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// blockedHostnames はブロック対象のホスト名。
var blockedHostnames = []string{
	"localhost",
}

// isBlockedHostname はホスト名がブロック対象かを検証する。
func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}
