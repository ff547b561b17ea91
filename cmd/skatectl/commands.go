package main

import (
	"fmt"
	"time"

	"github.com/myhuemungusD/skatehubba/internal/container"
	"github.com/myhuemungusD/skatehubba/internal/service"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "영속 저장소 스키마와 인덱스 적용",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// 연결 시점에 스키마(postgres)와 인덱스(mongo)가 적용된다.
			base, err := container.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer base.Close(cmd.Context())

			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.DurableBackend)
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "오래된 티켓 또는 로비 정리",
	}
	cmd.PersistentFlags().DurationVar(&maxAge, "max-age", 0, "이보다 오래된 기록 삭제 (0이면 설정값)")

	run := func(pick func(c *container.Container) (*service.StalenessSweep, time.Duration)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *container.Container) error {
				sweep, fallback := pick(c)
				age := maxAge
				if age <= 0 {
					age = fallback
				}

				removed, err := sweep.RunOlderThan(cmd.Context(), age)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d (older than %s)\n", removed, age)
				return nil
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "tickets",
			Short: "오래된 대기 티켓 삭제",
			RunE: run(func(c *container.Container) (*service.StalenessSweep, time.Duration) {
				return c.TicketSweep, c.Config.TicketMaxAge
			}),
		},
		&cobra.Command{
			Use:   "lobbies",
			Short: "오래된 로비 기록 삭제",
			RunE: run(func(c *container.Container) (*service.StalenessSweep, time.Duration) {
				return c.LobbySweep, c.Config.LobbyMaxAge
			}),
		},
	)
	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "대기열 조회와 조작",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "대기열 크기와 접속 중인 플레이어 수",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withContainer(cmd.Context(), func(c *container.Container) error {
					size, err := c.Matchmaking.QueueSize(cmd.Context())
					if err != nil {
						return err
					}
					presence, err := c.Matchmaking.Presence(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "queued: %d\npresent: %d\n", size, len(presence))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "cancel <uid>",
			Short: "플레이어의 대기 티켓 취소",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withContainer(cmd.Context(), func(c *container.Container) error {
					if err := c.Matchmaking.Cancel(cmd.Context(), args[0], ""); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

func matchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "대기열 앞부분에서 한 번 매칭 시도",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *container.Container) error {
				result, err := c.Matchmaking.Match(cmd.Context())
				if err != nil {
					return err
				}
				if result.LobbyID == "" {
					fmt.Fprintln(cmd.OutOrStdout(), result.Status)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %v\n", result.Status, result.LobbyID, result.Players)
				return nil
			})
		},
	}
}
