package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/jsonrpc"
	"github.com/theapemachine/a2a-go/pkg/sse"
)

var (
	clientEndpointFlag string
	clientTokenFlag    string
	clientTaskIDFlag   string
	clientContextFlag  string

	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "A2A client operations",
		Long:  `Run JSON-RPC operations against an A2A agent's task execution core.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	sendCmd = &cobra.Command{
		Use:   "send [text]",
		Short: "Send a message and wait for the task to halt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newRPCClient()

			msg := a2a.NewTextMessage("user", args[0])
			msg.TaskID = clientTaskIDFlag
			msg.ContextID = clientContextFlag

			var task a2a.Task
			if err := client.Call(cmd.Context(), "message/send", a2a.MessageSendParams{Message: *msg}, &task); err != nil {
				log.Error("message/send failed", "error", err)
				return err
			}

			fmt.Println(renderTask(&task))
			return nil
		},
	}

	getTaskCmd = &cobra.Command{
		Use:   "get [taskID]",
		Short: "Fetch a task by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newRPCClient()

			var task a2a.Task
			params := a2a.TaskQueryParams{TaskIDParams: a2a.TaskIDParams{ID: args[0]}}
			if err := client.Call(cmd.Context(), "tasks/get", params, &task); err != nil {
				log.Error("tasks/get failed", "error", err)
				return err
			}

			fmt.Println(renderTask(&task))
			return nil
		},
	}

	listTasksCmd = &cobra.Command{
		Use:   "list",
		Short: "List tasks known to the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newRPCClient()

			var result struct {
				Tasks []a2a.Task `json:"tasks"`
			}
			if err := client.Call(cmd.Context(), "tasks/list", a2a.TaskListParams{}, &result); err != nil {
				log.Error("tasks/list failed", "error", err)
				return err
			}

			for _, task := range result.Tasks {
				fmt.Printf("%s\t%s\t%s\n", task.TaskID, task.ContextID, task.Status.State)
			}
			return nil
		},
	}

	cancelTaskCmd = &cobra.Command{
		Use:   "cancel [taskID]",
		Short: "Cancel a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newRPCClient()

			var task a2a.Task
			params := a2a.TaskIDParams{ID: args[0]}
			if err := client.Call(cmd.Context(), "tasks/cancel", params, &task); err != nil {
				log.Error("tasks/cancel failed", "error", err)
				return err
			}

			fmt.Println(renderTask(&task))
			return nil
		},
	}

	streamCmd = &cobra.Command{
		Use:   "stream [text]",
		Short: "Send a message and print each task event as it streams in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := a2a.NewTextMessage("user", args[0])
			msg.TaskID = clientTaskIDFlag
			msg.ContextID = clientContextFlag

			streamClient := sse.NewClient(clientEndpointFlag, clientTokenFlag)
			err := streamClient.Stream(cmd.Context(), a2a.MessageSendParams{Message: *msg}, func(event a2a.TaskEvent) {
				state := "artifact-update"
				if event.Status != nil {
					state = string(event.Status.State)
				}
				fmt.Printf("%s\t%s\n", state, event.TaskID)
			})
			if err != nil {
				log.Error("message/stream failed", "error", err)
			}
			return err
		},
	}

	cardCmd = &cobra.Command{
		Use:   "card",
		Short: "Fetch and print the agent's manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSuffix(clientEndpointFlag, "/") + "/.well-known/agent.json"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				log.Error("fetching agent card failed", "error", err)
				return err
			}
			defer resp.Body.Close()

			var card a2a.AgentCard
			if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
				log.Error("decoding agent card failed", "error", err)
				return err
			}

			fmt.Println(renderCard(&card))
			return nil
		},
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Interactively exchange messages with an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newRPCClient()
			taskID := clientTaskIDFlag
			contextID := clientContextFlag

			for {
				var text string
				input := huh.NewInput().
					Title("Message").
					Value(&text).
					Placeholder("type a message, empty line to quit")

				if err := input.Run(); err != nil {
					return err
				}
				if text == "" {
					return nil
				}

				msg := a2a.NewTextMessage("user", text)
				msg.TaskID = taskID
				msg.ContextID = contextID

				var task a2a.Task
				if err := client.Call(cmd.Context(), "message/send", a2a.MessageSendParams{Message: *msg}, &task); err != nil {
					log.Error("message/send failed", "error", err)
					continue
				}

				taskID = task.TaskID
				contextID = task.ContextID
				fmt.Println(renderTask(&task))
			}
		},
	}
)

func newRPCClient() *jsonrpc.Client {
	return &jsonrpc.Client{Endpoint: clientEndpointFlag, Token: clientTokenFlag}
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.PersistentFlags().StringVarP(&clientEndpointFlag, "endpoint", "e", "http://localhost:3210/", "A2A JSON-RPC endpoint")
	clientCmd.PersistentFlags().StringVar(&clientTokenFlag, "token", "", "bearer token for authenticated agents")
	clientCmd.PersistentFlags().StringVar(&clientTaskIDFlag, "task", "", "existing task id to continue")
	clientCmd.PersistentFlags().StringVar(&clientContextFlag, "context", "", "existing context id to continue")

	clientCmd.AddCommand(sendCmd, getTaskCmd, listTasksCmd, cancelTaskCmd, streamCmd, cardCmd, chatCmd)
}
