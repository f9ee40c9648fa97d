package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/httpguard"
)

var proxyListen string

func init() {
	rootCmd.AddCommand(proxyCmd)
	proxyCmd.Flags().StringVar(&proxyListen, "listen", "127.0.0.1:8888", "Listen address")
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Start an HTTP forward proxy enforcing policy on outbound requests",
	Long: "Plain HTTP requests are evaluated and their response bodies enforced.\n" +
		"CONNECT tunnels are decided on the host name and opened only on allow.\n" +
		"All requests share one trace. The denylist file is reloaded on change.",
	RunE: runProxy,
}

func runProxy(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("tracegate proxy")
	if err != nil {
		return err
	}
	defer rt.Close()

	proxy := httpguard.NewProxy(rt.sess, componentLogger("proxy"))
	return serve(context.Background(), rt.engine, func(ctx context.Context) error {
		return proxy.Serve(ctx, proxyListen)
	})
}
