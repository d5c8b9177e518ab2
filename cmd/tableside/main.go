package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tableside/internal/app"
	"tableside/internal/config"
	"tableside/internal/db"
	"tableside/internal/engine"
	"tableside/internal/events"
	"tableside/internal/migrate"
	"tableside/internal/repo"
	"tableside/internal/server"
	"tableside/internal/staff"
)

var rootCmd = &cobra.Command{
	Use:   "tableside",
	Short: "Tableside CLI",
	Long: `Tableside runs a single restaurant's operations: pickup, delivery, and
dine-in orders with live kitchen countdowns, driver tracking, table bills,
reservations, receipts, and the staff back office.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TABLESIDE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(reservationCmd())
	rootCmd.AddCommand(receiptCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, conn repoConn) error {
				secret := os.Getenv("TABLESIDE_JWT_SECRET")
				if secret == "" {
					return fmt.Errorf("TABLESIDE_JWT_SECRET is required for bearer auth")
				}
				notifier := events.NewNotifier()
				e := engine.New(conn.DB.DB, conn.Cfg, notifier)
				s := staff.New(conn.DB.DB, conn.Cfg, notifier)
				handler, err := server.New(server.Config{
					Engine:   e,
					Staff:    s,
					Notifier: notifier,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Tableside API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func seedCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the workspace with an active owner account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("--password required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, conn repoConn) error {
				s := staff.New(conn.DB.DB, conn.Cfg, events.NewNotifier())
				emp, err := s.RegisterEmployee(ctx, name, email, server.RoleOwner, password)
				if err != nil {
					return err
				}
				emp, err = s.SetEmployeeStatus(ctx, emp.ID, "Active", emp.ID)
				if err != nil {
					return err
				}
				return printJSONOrPlain(emp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "Owner", "owner display name")
	cmd.Flags().StringVar(&email, "email", "owner@localhost", "owner sign-in email")
	cmd.Flags().StringVar(&password, "password", "", "owner password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Store profile"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default tableside.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective store profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, conn repoConn) error {
				if viper.GetBool("json") {
					return printJSONOrPlain(conn.Cfg)
				}
				data, err := conn.Cfg.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				return nil
			})
		},
	})
	return cfg
}

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "order", Short: "Orders"}
	cmd.AddCommand(orderListCmd())
	cmd.AddCommand(orderShowCmd())
	return cmd
}

func orderListCmd() *cobra.Command {
	var status, serviceType string
	var active bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, conn repoConn) error {
				orders, err := conn.DB.ListOrders(ctx, repo.OrderFilter{
					Status:      status,
					ServiceType: serviceType,
					ActiveOnly:  active,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSONOrPlain(orders)
				}
				now := time.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Service", "Status", "Total", "ETA", "Customer"})
				for _, o := range orders {
					eta := ""
					if ms := engine.RemainingMS(o, now); ms > 0 {
						eta = engine.FormatCountdown(ms)
					}
					tw.AppendRow(table.Row{shortID(o.ID), o.ServiceType, o.Status,
						fmt.Sprintf("%.2f", o.Totals.Total), eta, o.CustomerName})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&serviceType, "service", "", "service type filter")
	cmd.Flags().BoolVar(&active, "active", false, "only non-terminal orders")
	return cmd
}

func orderShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, conn repoConn) error {
				o, err := conn.DB.GetOrder(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrPlain(o)
			})
		},
	}
	return cmd
}

func reservationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "reservation", Short: "Reservations"}
	cmd.AddCommand(reservationAddCmd())
	cmd.AddCommand(reservationListCmd())
	return cmd
}

func reservationAddCmd() *cobra.Command {
	var tableNo int
	var start, end, name, phone string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Reserve a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, conn repoConn) error {
				e := engine.New(conn.DB.DB, conn.Cfg, events.NewNotifier())
				v, err := e.CreateReservation(ctx, tableNo, start, end, name, phone, "cli")
				if err != nil {
					return err
				}
				return printJSONOrPlain(v)
			})
		},
	}
	cmd.Flags().IntVar(&tableNo, "table", 0, "table number")
	cmd.Flags().StringVar(&start, "start", "", "start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end (RFC3339)")
	cmd.Flags().StringVar(&name, "name", "", "guest name")
	cmd.Flags().StringVar(&phone, "phone", "", "guest phone")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func reservationListCmd() *cobra.Command {
	var tableNo int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, conn repoConn) error {
				items, err := conn.DB.ListReservations(ctx, tableNo)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSONOrPlain(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Table", "Start", "End", "Name", "Phone"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.Table, v.Start, v.End, v.Name, v.Phone})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&tableNo, "table", 0, "filter by table")
	return cmd
}

func receiptCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "receipt", Short: "Receipts"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List receipts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, conn repoConn) error {
				items, err := conn.DB.ListReceipts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSONOrPlain(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Order", "Service", "Subtotal", "Tax", "Fee", "Total", "At"})
				for _, rc := range items {
					tw.AppendRow(table.Row{shortID(rc.OrderID), rc.ServiceType,
						fmt.Sprintf("%.2f", rc.Subtotal), fmt.Sprintf("%.2f", rc.Tax),
						fmt.Sprintf("%.2f", rc.Fee), fmt.Sprintf("%.2f", rc.Total), rc.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Reports"}
	cmd.AddCommand(&cobra.Command{
		Use:   "sales",
		Short: "Sales totals by service type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, conn repoConn) error {
				sales, err := conn.DB.SalesByServiceType(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSONOrPlain(sales)
				}
				types := make([]string, 0, len(sales))
				for t := range sales {
					types = append(types, t)
				}
				sort.Strings(types)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Service", "Orders", "Total"})
				var grandCount int
				var grandTotal float64
				for _, t := range types {
					row := sales[t]
					grandCount += row.Count
					grandTotal += row.Total
					tw.AppendRow(table.Row{t, row.Count, fmt.Sprintf("%.2f", row.Total)})
				}
				tw.AppendFooter(table.Row{"TOTAL", grandCount, fmt.Sprintf("%.2f", grandTotal)})
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func logCmd() *cobra.Command {
	var after int64
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show events after a cursor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, conn repoConn) error {
				evts, err := conn.DB.EventsAfter(ctx, limit, after)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSONOrPlain(evts)
				}
				for _, evt := range evts {
					fmt.Printf("%6d  %s  %-24s %s/%s %s\n", evt.ID, evt.TS, evt.Type, evt.EntityKind, shortID(evt.EntityID), evt.Payload)
				}
				return nil
			})
		},
	}
	tail.Flags().Int64Var(&after, "after", 0, "event id cursor")
	tail.Flags().IntVar(&limit, "limit", 50, "max events")
	cmd.AddCommand(tail)
	return cmd
}

// repoConn bundles the open database with the resolved store profile.
type repoConn struct {
	DB  repo.Repo
	Cfg *config.Config
}

func withStore(ctx context.Context, fn func(context.Context, repoConn) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveStoreConfig(ctx, workspace, r)
	if err != nil {
		return err
	}
	return fn(ctx, repoConn{DB: r, Cfg: cfg})
}

func printJSONOrPlain(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
