package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandReconcile はスキーマリコンサイルを実行することを示す。
	// 台帳の適用・ポリシーの再適用・収束検証をまとめて行う。
	CommandReconcile Command = "reconcile"
	// CommandSeed は種データの投入を実行することを示す。
	CommandSeed Command = "seed"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "reconcile":
		return CommandReconcile
	case "seed":
		return CommandSeed
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
