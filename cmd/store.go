package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"MemoFM/config"
	"MemoFM/model"
	"MemoFM/repository"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "存储后端连接测试",
	Long:  `测试配置的存储后端连接是否成功，并进行基本读写操作。支持badger、redis、minio和mysql。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始测试存储后端...")

		// 加载配置
		cfg := config.Load()
		fmt.Printf("存储配置: driver=%s\n", cfg.StoreDriver)

		// 连接存储
		store, err := repository.NewRepository(cfg)
		if err != nil {
			log.Fatalf("无法连接到存储后端: %v", err)
		}
		defer store.Close()
		fmt.Println("存储后端连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// 测试基本操作：写入一条自检录音再读回删除
		fmt.Println("开始测试基本读写操作...")
		probe := &model.Recording{
			ID:        "selftest-" + uuid.NewString(),
			Name:      "store selftest",
			Duration:  1.5,
			Format:    "wav",
			CreatedAt: time.Now(),
			Data:      []byte("memofm store selftest payload"),
		}

		if err := store.Put(ctx, probe); err != nil {
			log.Fatalf("写入测试失败: %v", err)
		}
		got, err := store.Get(ctx, probe.ID)
		if err != nil {
			log.Fatalf("读取测试失败: %v", err)
		}
		if got == nil || string(got.Data) != string(probe.Data) {
			log.Fatalf("读取结果与写入内容不一致")
		}
		list, err := store.List(ctx)
		if err != nil {
			log.Fatalf("列表测试失败: %v", err)
		}
		fmt.Printf("当前存储共 %d 条录音\n", len(list))
		if err := store.Remove(ctx, probe.ID); err != nil {
			log.Fatalf("删除测试失败: %v", err)
		}
		fmt.Println("基本读写操作测试成功！")

		fmt.Println("存储测试完成，连接已关闭。")
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
}
